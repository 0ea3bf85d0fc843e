package domain

import (
	"testing"
	"time"
)

func TestIdentity_Validate(t *testing.T) {
	tok := "t"
	exp := time.Now().Add(time.Minute)
	tests := []struct {
		name    string
		id      Identity
		wantErr bool
	}{
		{"no token", Identity{IsActive: true}, false},
		{"pending", Identity{ActivationToken: &tok, ActivationExpiresAt: &exp}, false},
		{"token without expiry", Identity{ActivationToken: &tok}, true},
		{"expiry without token", Identity{ActivationExpiresAt: &exp}, true},
		{"active with token", Identity{IsActive: true, ActivationToken: &tok, ActivationExpiresAt: &exp}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIdentity_ActivationExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Nanosecond)
	future := now.Add(time.Minute)
	if !(&Identity{ActivationExpiresAt: &past}).ActivationExpired(now) {
		t.Error("past expiry should be expired")
	}
	if !(&Identity{ActivationExpiresAt: &now}).ActivationExpired(now) {
		t.Error("expiry equal to now should be expired")
	}
	if (&Identity{ActivationExpiresAt: &future}).ActivationExpired(now) {
		t.Error("future expiry should not be expired")
	}
}

func TestIdentity_CloneIsDeep(t *testing.T) {
	tok := "t"
	exp := time.Now()
	orig := &Identity{ID: "1", ActivationToken: &tok, ActivationExpiresAt: &exp}
	c := orig.Clone()
	*c.ActivationToken = "changed"
	if *orig.ActivationToken != "t" {
		t.Error("Clone shares ActivationToken pointer")
	}
}
