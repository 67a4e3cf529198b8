package features

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"library-circulation/internal/circulation"
	"library-circulation/internal/notify"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type circulationTestContext struct {
	store     *circulation.MemoryStore
	svc       *circulation.Service
	clock     *clock
	lastLoan  *circulation.Loan
	err       error
	reminders []circulation.Reminder
}

func (c *circulationTestContext) reset() {
	c.store = circulation.NewMemoryStore(200 * time.Millisecond)
	c.clock = &clock{t: time.Now().UTC()}
	c.svc = circulation.NewService(c.store, circulation.DefaultPolicy(), circulation.WithClock(c.clock))
	c.lastLoan = nil
	c.err = nil
	c.reminders = nil
}

func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (c *circulationTestContext) theLibraryOwnsCopies(list string) error {
	ids, err := parseIDs(list)
	if err != nil {
		return err
	}
	for i := range ids {
		cp, err := c.store.AddCopy(context.Background(), circulation.BookCopy{
			BookID:          1,
			LibraryID:       1,
			InventoryNumber: fmt.Sprintf("LIB-%d", i+1),
		})
		if err != nil {
			return err
		}
		if cp.ID != ids[i] {
			return fmt.Errorf("copies must be listed in order, got id %d for %d", cp.ID, ids[i])
		}
	}
	return nil
}

func (c *circulationTestContext) todayIs(s string) error {
	t, err := circulation.ParseDueDate(s)
	if err != nil {
		return err
	}
	c.clock.set(t)
	return nil
}

func (c *circulationTestContext) patronBorrows(patron, list, due string) error {
	ids, err := parseIDs(list)
	if err != nil {
		return err
	}
	d, err := circulation.ParseDueDate(due)
	if err != nil {
		return err
	}
	l, err := c.svc.Borrow(context.Background(), patron, ids, d)
	c.err = err
	if err == nil {
		c.lastLoan = l
	}
	return nil
}

func (c *circulationTestContext) patronHasBorrowed(patron, list, due string) error {
	if err := c.patronBorrows(patron, list, due); err != nil {
		return err
	}
	return c.theBorrowSucceeds()
}

func (c *circulationTestContext) theBorrowSucceeds() error {
	if c.err != nil {
		return fmt.Errorf("expected success but got %v", c.err)
	}
	return nil
}

func (c *circulationTestContext) theBorrowFailsWith(code string) error {
	if c.err == nil {
		return fmt.Errorf("expected %s but borrow succeeded", code)
	}
	if !circulation.IsCode(c.err, circulation.Code(code)) {
		return fmt.Errorf("expected %s, got %v", code, c.err)
	}
	return nil
}

func (c *circulationTestContext) copiesAre(list, status string) error {
	ids, err := parseIDs(list)
	if err != nil {
		return err
	}
	copies, err := c.store.GetCopies(context.Background(), ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if got := string(copies[id].Status); got != status {
			return fmt.Errorf("copy %d: expected %s, got %s", id, status, got)
		}
	}
	return nil
}

func (c *circulationTestContext) patronHasActiveItems(patron string, n int) error {
	got, err := c.store.ActiveItemCount(context.Background(), patron)
	if err != nil {
		return err
	}
	if got != n {
		return fmt.Errorf("expected %d active items, got %d", n, got)
	}
	return nil
}

func (c *circulationTestContext) anEventIsQueued(typ string) error {
	for _, e := range c.store.Events() {
		if e.Type == notify.EventType(typ) {
			return nil
		}
	}
	return fmt.Errorf("no %s event in outbox", typ)
}

func (c *circulationTestContext) patronReturnsAllItems(patron string) error {
	if c.lastLoan == nil {
		return fmt.Errorf("no loan")
	}
	ids := make([]string, 0, len(c.lastLoan.Items))
	for _, it := range c.lastLoan.Items {
		ids = append(ids, it.ID)
	}
	l, err := c.svc.ReturnItems(context.Background(), circulation.Caller{ID: patron}, c.lastLoan.ID, ids)
	if err != nil {
		return err
	}
	c.lastLoan = l
	return nil
}

func (c *circulationTestContext) theLoanIsRefreshed() error {
	l, err := c.svc.Refresh(context.Background(), c.lastLoan.ID)
	if err != nil {
		return err
	}
	c.lastLoan = l
	return nil
}

func (c *circulationTestContext) theLoanStatusIs(status string) error {
	if got := string(c.lastLoan.Status); got != status {
		return fmt.Errorf("expected status %s, got %s", status, got)
	}
	return nil
}

func (c *circulationTestContext) theLoanPenaltyIs(amount string) error {
	if got := c.lastLoan.Penalty.StringFixed(2); got != amount {
		return fmt.Errorf("expected penalty %s, got %s", amount, got)
	}
	return nil
}

func (c *circulationTestContext) staffScansDueWithin(days int) error {
	rs, err := c.svc.FindDueSoon(context.Background(), circulation.Caller{ID: "lib", Role: "staff"}, days)
	if err != nil {
		return err
	}
	c.reminders = rs
	return nil
}

func (c *circulationTestContext) dueSoonRemindersAreSent(n int) error {
	if len(c.reminders) != n {
		return fmt.Errorf("expected %d reminders, got %d", n, len(c.reminders))
	}
	queued := 0
	for _, e := range c.store.Events() {
		if e.Type == notify.TypeDueSoon {
			queued++
		}
	}
	if queued != n {
		return fmt.Errorf("expected %d due_soon events, got %d", n, queued)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &circulationTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^the library owns copies ([\d, ]+)$`, tc.theLibraryOwnsCopies)
	ctx.Step(`^today is "([^"]*)"$`, tc.todayIs)
	ctx.Step(`^patron "([^"]*)" has borrowed copies ([\d, ]+) due "([^"]*)"$`, tc.patronHasBorrowed)

	// When steps
	ctx.Step(`^patron "([^"]*)" borrows copies ([\d, ]+) due "([^"]*)"$`, tc.patronBorrows)
	ctx.Step(`^patron "([^"]*)" returns all items$`, tc.patronReturnsAllItems)
	ctx.Step(`^the loan is refreshed$`, tc.theLoanIsRefreshed)
	ctx.Step(`^staff scans for items due within (\d+) days$`, tc.staffScansDueWithin)

	// Then steps
	ctx.Step(`^the borrow succeeds$`, tc.theBorrowSucceeds)
	ctx.Step(`^the borrow fails with "([^"]*)"$`, tc.theBorrowFailsWith)
	ctx.Step(`^copies ([\d, ]+) are (available|borrowed)$`, tc.copiesAre)
	ctx.Step(`^patron "([^"]*)" has (\d+) active items$`, tc.patronHasActiveItems)
	ctx.Step(`^a "([^"]*)" event is queued$`, tc.anEventIsQueued)
	ctx.Step(`^the loan status is "([^"]*)"$`, tc.theLoanStatusIs)
	ctx.Step(`^the loan penalty is "([^"]*)"$`, tc.theLoanPenaltyIs)
	ctx.Step(`^(\d+) due-soon reminders are sent$`, tc.dueSoonRemindersAreSent)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"circulation.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
