package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/serendip/gatekeeper/internal/core/domain"
)

func newLoadedRestrictionService(t *testing.T, rules ...domain.RestrictionRule) *RestrictionService {
	t.Helper()
	svc := NewRestrictionService(&stubRestrictionRepo{rules: rules}, discardLogger)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return svc
}

func TestRestrictionRule_Permits(t *testing.T) {
	user := &domain.User{ID: "u1", Groups: []string{"staff"}}

	tests := []struct {
		name string
		rule domain.RestrictionRule
		want bool
	}{
		{"block-list without overlap", domain.RestrictionRule{AllowAll: true, Groups: []string{"banned"}}, true},
		{"block-list with overlap", domain.RestrictionRule{AllowAll: true, Groups: []string{"staff"}}, false},
		{"require-list with overlap", domain.RestrictionRule{Groups: []string{"staff", "admin"}}, true},
		{"require-list without overlap", domain.RestrictionRule{Groups: []string{"admin"}}, false},
		{"empty require-list", domain.RestrictionRule{}, false},
		{"empty block-list", domain.RestrictionRule{AllowAll: true}, true},
		{"user override beats block-list", domain.RestrictionRule{AllowAll: true, Groups: []string{"staff"}, Users: []string{"u1"}}, true},
		{"user override beats require-list", domain.RestrictionRule{Groups: []string{"admin"}, Users: []string{"u1"}}, true},
		{"other user listed", domain.RestrictionRule{Groups: []string{"admin"}, Users: []string{"u2"}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rule.Permits(user); got != tc.want {
				t.Errorf("Permits = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRestrictionService_Evaluate_NoRulesPermits(t *testing.T) {
	svc := newLoadedRestrictionService(t)

	if err := svc.Evaluate(&domain.User{ID: "u1"}, "user", "profile"); err != nil {
		t.Fatalf("no rules must permit, got %v", err)
	}
}

func TestRestrictionService_Evaluate_Tiers(t *testing.T) {
	global := domain.RestrictionRule{AllowAll: true, Groups: []string{"banned"}}
	controller := domain.RestrictionRule{ControllerName: "report", Groups: []string{"staff"}}
	endpoint := domain.RestrictionRule{ControllerName: "report", Endpoint: "export", Groups: []string{"exporter"}}
	svc := newLoadedRestrictionService(t, global, controller, endpoint)

	tests := []struct {
		name     string
		groups   []string
		endpoint string
		wantErr  bool
	}{
		{"staff on plain endpoint", []string{"staff"}, "list", false},
		{"staff on export lacks exporter", []string{"staff"}, "export", true},
		{"staff and exporter on export", []string{"staff", "exporter"}, "export", false},
		{"exporter alone fails controller tier", []string{"exporter"}, "export", true},
		{"banned staff fails global tier", []string{"staff", "banned"}, "list", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Evaluate(&domain.User{ID: "u1", Groups: tc.groups}, "report", tc.endpoint)
			if tc.wantErr && !errors.Is(err, domain.ErrGroupAccessDenied) {
				t.Fatalf("expected ErrGroupAccessDenied, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected access, got %v", err)
			}
		})
	}

	// Rules of other controllers never apply.
	if err := svc.Evaluate(&domain.User{ID: "u1"}, "user", "export"); err != nil {
		t.Fatalf("unrelated controller must only see the global rule, got %v", err)
	}
}

func TestRestrictionService_Evaluate_UserOverridePerRule(t *testing.T) {
	controller := domain.RestrictionRule{ControllerName: "report", Groups: []string{"staff"}, Users: []string{"u1"}}
	endpoint := domain.RestrictionRule{ControllerName: "report", Endpoint: "export", Groups: []string{"exporter"}}
	svc := newLoadedRestrictionService(t, controller, endpoint)

	user := &domain.User{ID: "u1"}
	if err := svc.Evaluate(user, "report", "list"); err != nil {
		t.Fatalf("listed user passes the controller rule, got %v", err)
	}
	if err := svc.Evaluate(user, "report", "export"); !errors.Is(err, domain.ErrGroupAccessDenied) {
		t.Fatalf("override must not leak into the endpoint rule, got %v", err)
	}
}

func TestRestrictionService_Refresh_DuplicateScopeFirstWins(t *testing.T) {
	first := domain.RestrictionRule{ControllerName: "report", AllowAll: true}
	second := domain.RestrictionRule{ControllerName: "report", Groups: []string{"admin"}}
	svc := newLoadedRestrictionService(t, first, second)

	if len(svc.Rules()) != 1 {
		t.Fatalf("expected 1 rule after dedup, got %d", len(svc.Rules()))
	}
	if err := svc.Evaluate(&domain.User{ID: "u1"}, "report", "list"); err != nil {
		t.Fatalf("first rule (allow all) must win, got %v", err)
	}
}

func TestRestrictionService_Refresh_StoreErrorKeepsSnapshot(t *testing.T) {
	repo := &stubRestrictionRepo{rules: []domain.RestrictionRule{{ControllerName: "report", Groups: []string{"admin"}}}}
	svc := NewRestrictionService(repo, discardLogger)
	_ = svc.Refresh(context.Background())

	repo.findErr = errors.New("mongo down")
	if err := svc.Refresh(context.Background()); domain.KindOf(err) != domain.KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(svc.Rules()) != 1 {
		t.Fatal("failed refresh must keep the previous snapshot")
	}
}

func TestRestrictionService_UpsertAndRemove(t *testing.T) {
	repo := &stubRestrictionRepo{}
	svc := NewRestrictionService(repo, discardLogger)
	rule := domain.RestrictionRule{ControllerName: "report", Groups: []string{"admin"}}

	if err := svc.Upsert(context.Background(), rule); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := svc.Evaluate(&domain.User{ID: "u1"}, "report", "list"); !errors.Is(err, domain.ErrGroupAccessDenied) {
		t.Fatalf("upserted rule must apply immediately, got %v", err)
	}

	if err := svc.Remove(context.Background(), rule.Key()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := svc.Evaluate(&domain.User{ID: "u1"}, "report", "list"); err != nil {
		t.Fatalf("removed rule must stop applying, got %v", err)
	}
	if err := svc.Remove(context.Background(), rule.Key()); !errors.Is(err, domain.ErrRuleNotFound) {
		t.Fatalf("removing twice: got %v, want ErrRuleNotFound", err)
	}
}

func TestRestrictionService_ConcurrentEvaluateAndRefresh(t *testing.T) {
	repo := &stubRestrictionRepo{rules: []domain.RestrictionRule{{ControllerName: "report", Groups: []string{"staff"}}}}
	svc := NewRestrictionService(repo, discardLogger)
	_ = svc.Refresh(context.Background())
	user := &domain.User{ID: "u1", Groups: []string{"staff"}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := svc.Evaluate(user, "report", "list"); err != nil {
					t.Errorf("Evaluate: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = svc.Refresh(context.Background())
			}
		}()
	}
	wg.Wait()
}
