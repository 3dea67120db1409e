package models

import "testing"

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected ID to be preserved, got %s", base.ID)
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel {
			u := &User{}
			return &u.BaseModel
		}},
		{"role", func() *BaseModel {
			r := &Role{}
			return &r.BaseModel
		}},
		{"permission", func() *BaseModel {
			p := &Permission{}
			return &p.BaseModel
		}},
		{"menu", func() *BaseModel {
			m := &Menu{}
			return &m.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := tc.model()
			if err := base.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if base.ID == "" {
				t.Fatal("expected generated ID")
			}
		})
	}
}

func TestAuditLogBeforeCreate(t *testing.T) {
	log := &AuditLog{}
	if err := log.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if log.ID == "" {
		t.Fatal("expected audit log ID to be generated")
	}
}
