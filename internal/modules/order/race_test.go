// README: Postgres-backed race tests for the optimistic transition write.
// These run only when LEVO_TEST_DSN points at a disposable database.
package order

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"levo/internal/modules/pricing"
	"levo/internal/types"
)

func TestPgConcurrentAccept(t *testing.T) {
	svc := NewService(setupPgStore(t), pricing.NewService(nil, 15), nil)
	ctx := context.Background()

	o := mustCreateOrder(t, svc, "shop_pg_race")
	mustConfirmPayment(t, svc, o.ID)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		courierID := types.ID(fmt.Sprintf("courier_pg_%d", i))
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			errs <- svc.Transition(ctx, TransitionCommand{
				OrderID: o.ID, Target: StatusAccepted,
				Actor: Actor{ID: id, Role: RoleCourier},
			})
		}(courierID)
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if err != ErrAlreadyAssigned && err != ErrInvalidTransition && err != ErrConflict {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful accept, got %d", success)
	}

	got, err := svc.Get(ctx, Actor{ID: "admin", Role: RoleAdmin}, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Order.Status != StatusAccepted || got.Order.CourierID == nil {
		t.Fatalf("final state: status=%s courier=%v", got.Order.Status, got.Order.CourierID)
	}
}

func TestPgConcurrentAcceptVsCancel(t *testing.T) {
	svc := NewService(setupPgStore(t), pricing.NewService(nil, 15), nil)
	ctx := context.Background()

	o := mustCreateOrder(t, svc, "shop_pg_ac")
	mustConfirmPayment(t, svc, o.ID)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- svc.Transition(ctx, TransitionCommand{
			OrderID: o.ID, Target: StatusAccepted,
			Actor: Actor{ID: "courier_pg", Role: RoleCourier},
		})
	}()
	go func() {
		defer wg.Done()
		errs <- svc.Transition(ctx, TransitionCommand{
			OrderID: o.ID, Target: StatusCancelled,
			Actor: Actor{ID: "shop_pg_ac", Role: RoleStore},
		})
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && err != ErrConflict && err != ErrInvalidTransition && err != ErrAlreadyAssigned {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := svc.Get(ctx, Actor{ID: "admin", Role: RoleAdmin}, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Order.Status != StatusAccepted && got.Order.Status != StatusCancelled {
		t.Fatalf("unexpected final status: %s", got.Order.Status)
	}
}

func TestPgHistoryAppendOnlyOrder(t *testing.T) {
	svc := NewService(setupPgStore(t), pricing.NewService(nil, 15), nil)
	ctx := context.Background()

	o := mustCreateOrder(t, svc, "shop_pg_hist")
	mustConfirmPayment(t, svc, o.ID)
	courier := Actor{ID: "courier_hist", Role: RoleCourier}
	for _, target := range []Status{StatusAccepted, StatusEnRoutePickup, StatusPickedUp, StatusInTransit, StatusDelivered} {
		if err := svc.Transition(ctx, TransitionCommand{OrderID: o.ID, Target: target, Actor: courier}); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
	}

	got, err := svc.Get(ctx, Actor{ID: "admin", Role: RoleAdmin}, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []Status{StatusNew, StatusPendingAssignment, StatusAccepted, StatusEnRoutePickup, StatusPickedUp, StatusInTransit, StatusDelivered}
	if len(got.History) != len(want) {
		t.Fatalf("history length = %d, want %d", len(got.History), len(want))
	}
	for i, e := range got.History {
		if e.Status != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, e.Status, want[i])
		}
	}
}

func setupPgStore(t *testing.T) *PgStore {
	t.Helper()

	dsn := os.Getenv("LEVO_TEST_DSN")
	if dsn == "" {
		t.Skip("LEVO_TEST_DSN not set; skipping DB-backed race tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE order_status_history, payments, payouts, disputes, orders CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewPgStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
