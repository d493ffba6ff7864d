package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/models"
)

type fakeUsers map[string]*models.User

func (f fakeUsers) GetUsersByIDs(_ context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User)
	for _, id := range ids {
		if u, ok := f[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type recordingPusher struct {
	mu      sync.Mutex
	sent    map[string]Message
	failFor string
}

func (p *recordingPusher) Push(_ context.Context, token string, msg Message) error {
	if token == p.failFor {
		return errors.New("device unregistered")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[string]Message)
	}
	p.sent[token] = msg
	return nil
}

func (p *recordingPusher) tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for t := range p.sent {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveNotification(kind, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[kind+"/"+result]++
}

func testUsers() fakeUsers {
	return fakeUsers{
		"payer":    {ID: "payer", Name: "Pat", PushToken: "tok-payer"},
		"debtor":   {ID: "debtor", Name: "Dana", PushToken: "tok-debtor"},
		"paid":     {ID: "paid", Name: "Paula", PushToken: "tok-paid"},
		"deleted":  {ID: "deleted", Name: "Del", PushToken: "tok-deleted"},
		"notoken":  {ID: "notoken", Name: "Nora", PushToken: "none"},
		"failing":  {ID: "failing", Name: "Fay", PushToken: "tok-failing"},
		"zeroowed": {ID: "zeroowed", Name: "Zed", PushToken: "tok-zero"},
	}
}

func testExpense() models.Expense {
	return models.Expense{
		ID:          "exp-1",
		Description: "Cena",
		TotalAmount: 120,
		PaidBy:      "payer",
		Participants: []models.Participant{
			{UserID: "payer", AmountOwed: 20},
			{UserID: "debtor", AmountOwed: 20},
			{UserID: "paid", AmountOwed: 20, Paid: true},
			{UserID: "deleted", AmountOwed: 20, IsDeleted: true},
			{UserID: "notoken", AmountOwed: 20},
			{UserID: "zeroowed"},
		},
	}
}

func TestRecipients(t *testing.T) {
	got := Recipients(testExpense())
	var ids []string
	for _, p := range got {
		ids = append(ids, p.UserID)
	}
	assert.Equal(t, []string{"debtor", "notoken", "zeroowed"}, ids)
}

func TestNotifyReminder(t *testing.T) {
	pusher := &recordingPusher{}
	observer := &countingObserver{}
	d := NewDispatcher(testUsers(), pusher, observer)

	count, err := d.NotifyReminder(context.Background(), "group-1", testExpense())
	require.NoError(t, err)
	assert.Equal(t, 2, count, "payer, paid, deleted and token-less participants are excluded")

	d.Wait()
	assert.Equal(t, []string{"tok-debtor", "tok-zero"}, pusher.tokens())

	msg := pusher.sent["tok-debtor"]
	assert.Equal(t, map[string]string{"groupId": "group-1", "type": TypePaymentReminder, "expenseId": "exp-1"}, msg.Data)
	assert.Contains(t, msg.Body, "$20.00")
	assert.Contains(t, pusher.sent["tok-zero"].Body, "$0.00")
	assert.NotContains(t, pusher.sent["tok-zero"].Body, "$120.00")
	assert.Equal(t, 2, observer.counts[TypePaymentReminder+"/sent"])
}

func TestNotifyReminder_NoRecipients(t *testing.T) {
	pusher := &recordingPusher{}
	d := NewDispatcher(testUsers(), pusher, nil)

	expense := testExpense()
	for i := range expense.Participants {
		expense.Participants[i].Paid = true
	}

	count, err := d.NotifyReminder(context.Background(), "group-1", expense)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	d.Wait()
	assert.Empty(t, pusher.tokens())
}

func TestNotifyNewExpense_IsolatesFailures(t *testing.T) {
	pusher := &recordingPusher{failFor: "tok-failing"}
	observer := &countingObserver{}
	d := NewDispatcher(testUsers(), pusher, observer)

	expense := testExpense()
	expense.Participants = append(expense.Participants, models.Participant{UserID: "failing", AmountOwed: 20})

	d.NotifyNewExpense("group-1", expense)
	d.Wait()

	assert.Equal(t, []string{"tok-debtor", "tok-zero"}, pusher.tokens())
	assert.Equal(t, TypeNewExpense, pusher.sent["tok-debtor"].Data["type"])
	assert.Equal(t, 1, observer.counts[TypeNewExpense+"/failed"])
	assert.Equal(t, 2, observer.counts[TypeNewExpense+"/sent"])
}

func TestNotifyNewExpense_ZeroShare(t *testing.T) {
	pusher := &recordingPusher{}
	d := NewDispatcher(testUsers(), pusher, nil)

	expense := models.Expense{
		ID:          "exp-2",
		Description: "Hotel",
		TotalAmount: 100,
		PaidBy:      "payer",
		SplitType:   models.SplitUnequal,
		Participants: []models.Participant{
			{UserID: "payer", AmountOwed: 100},
			{UserID: "zeroowed", AmountOwed: 0},
		},
	}
	d.NotifyNewExpense("group-1", expense)
	d.Wait()

	assert.Equal(t, "Zed, nuevo gasto: Hotel, debes pagar $0.00", pusher.sent["tok-zero"].Body)
}
