//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"telegram-license-server/internal/domain"
)

// --- Code Model Tests ---

func TestNewCode(t *testing.T) {
	t.Run("should create a timed code", func(t *testing.T) {
		c, err := NewCode("ABCDEF0123456789", 30, false)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if c.Days != 30 || c.IsDeveloper {
			t.Errorf("unexpected code %+v", c)
		}
	})

	t.Run("should force zero days on developer codes", func(t *testing.T) {
		c, err := NewCode("DEV0000000000000", 90, true)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if c.Days != 0 || !c.IsDeveloper {
			t.Errorf("expected perpetual developer code, got %+v", c)
		}
	})

	t.Run("should reject non-positive days for regular codes", func(t *testing.T) {
		_, err := NewCode("ABCDEF0123456789", 0, false)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should reject an empty value", func(t *testing.T) {
		if _, err := NewCode("  ", 30, false); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

// --- Activation Model Tests ---

func TestActivation_MatchesInstallation(t *testing.T) {
	stored := "inst-1"
	empty := ""
	tests := []struct {
		name     string
		stored   *string
		incoming string
		want     bool
	}{
		{"no stored id matches anything", nil, "inst-2", true},
		{"empty stored id matches anything", &empty, "inst-2", true},
		{"stored id with no incoming id matches", &stored, "", true},
		{"same ids match", &stored, "inst-1", true},
		{"different ids do not match", &stored, "inst-2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Activation{InstallationID: tt.stored}
			if got := a.MatchesInstallation(tt.incoming); got != tt.want {
				t.Errorf("MatchesInstallation(%q) = %v, want %v", tt.incoming, got, tt.want)
			}
		})
	}
}

func TestActivation_IsExpired(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if !(&Activation{ExpiresAt: &past}).IsExpired(now) {
		t.Error("expected past expiry to be expired")
	}
	if (&Activation{ExpiresAt: &future}).IsExpired(now) {
		t.Error("expected future expiry to be live")
	}
	if (&Activation{ExpiresAt: &past, IsDeveloper: true}).IsExpired(now) {
		t.Error("developer bindings never expire")
	}
	if (&Activation{}).IsExpired(now) {
		t.Error("nil expiry never expires")
	}
}

// --- User Model Tests ---

func TestNormalizeUsername(t *testing.T) {
	tests := map[string]string{
		"  @Alice ":                   "Alice",
		"@@bob":                       "bob",
		"https://t.me/carol":          "carol",
		"t.me/dave/123":               "dave",
		"https://t.me/erin?start=ref": "erin",
		"":                            "",
	}
	for in, want := range tests {
		if got := NormalizeUsername(in); got != want {
			t.Errorf("NormalizeUsername(%q) = %q, want %q", in, got, want)
		}
	}
	if got := PendingKey("@Alice"); got != "alice" {
		t.Errorf("PendingKey lower-cases, got %q", got)
	}
}

func TestRoleFlags(t *testing.T) {
	p, g, err := RoleFlags("Partner")
	if err != nil || !p || g {
		t.Errorf("partner: got %v %v %v", p, g, err)
	}
	p, g, err = RoleFlags("gift")
	if err != nil || p || !g {
		t.Errorf("gift: got %v %v %v", p, g, err)
	}
	p, g, err = RoleFlags("client")
	if err != nil || p || g {
		t.Errorf("client: got %v %v %v", p, g, err)
	}
	if _, _, err := RoleFlags("vip"); !errors.Is(err, domain.ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestNewUser(t *testing.T) {
	u, err := NewUser(12345, "@testuser")
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if u.Username != "testuser" || u.Role() != domain.RoleClient {
		t.Errorf("unexpected user %+v", u)
	}
	if _, err := NewUser(0, "x"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for zero id, got %v", err)
	}
}

// --- Identity Model Tests ---

func TestIdentity(t *testing.T) {
	pct := 15.0
	reg := Registered(&User{TelegramID: 7, Username: "reg", IsPartner: true})
	staged := Staged(&PendingIdentity{Username: "staged", IsGift: true, CustomDiscountPct: &pct})

	if !reg.IsRegistered() || reg.TelegramID() != 7 || reg.Role() != domain.RolePartner {
		t.Errorf("unexpected registered identity accessors")
	}
	if staged.IsRegistered() || staged.TelegramID() != 0 || staged.Role() != domain.RoleGift {
		t.Errorf("unexpected staged identity accessors")
	}
	if reg.User() == nil || reg.Pending() != nil || staged.User() != nil || staged.Pending() == nil {
		t.Errorf("exactly one side of the union should be set")
	}
	if staged.CustomDiscountPct() == nil || *staged.CustomDiscountPct() != 15 {
		t.Errorf("expected staged discount to be visible")
	}
}

func TestSubscriptionInfo_DaysLeft(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in10 := now.Add(10*24*time.Hour + time.Hour)
	ago := now.Add(-48 * time.Hour)

	if d := (&SubscriptionInfo{ExpiresAt: &in10}).DaysLeft(now); d != 10 {
		t.Errorf("expected 10 days, got %d", d)
	}
	if d := (&SubscriptionInfo{ExpiresAt: &ago}).DaysLeft(now); d != 0 {
		t.Errorf("expected clamp to 0, got %d", d)
	}
	if d := (&SubscriptionInfo{IsDeveloper: true}).DaysLeft(now); d != -1 {
		t.Errorf("expected -1 for perpetual, got %d", d)
	}
}
