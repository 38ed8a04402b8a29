package mongo

import (
	"time"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
)

type recordModel struct {
	ClientKey          string    `bson:"_id"`
	Packs              []string  `bson:"packs"`
	SubscriptionActive bool      `bson:"subscription_active"`
	Bundle             bool      `bson:"bundle"`
	LastUpdated        time.Time `bson:"last_updated"`
}

func toRecordModel(key string, r *entitlement.Record) *recordModel {
	packs := make([]string, len(r.Packs))
	for i, p := range r.Packs {
		packs[i] = p.String()
	}
	return &recordModel{
		ClientKey:          key,
		Packs:              packs,
		SubscriptionActive: r.SubscriptionActive,
		Bundle:             r.Bundle,
		LastUpdated:        r.LastUpdated.UTC(),
	}
}

func fromRecordModel(m *recordModel) *entitlement.Record {
	r := &entitlement.Record{
		Packs:              make([]pack.ID, len(m.Packs)),
		SubscriptionActive: m.SubscriptionActive,
		Bundle:             m.Bundle,
		LastUpdated:        m.LastUpdated,
	}
	for i, p := range m.Packs {
		r.Packs[i] = pack.ID(p)
	}
	r.Normalize()
	return r
}
