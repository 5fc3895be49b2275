package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/simbase-hub/internal/model"
)

func result(cycleID string, iccids ...string) *model.PollResult {
	sims := make([]model.SimRecord, 0, len(iccids))
	for _, id := range iccids {
		sims = append(sims, model.SimRecord{ICCID: id, Status: model.StatusEnabled})
	}
	return model.NewPollResult(cycleID, time.Now(), sims, model.AccountSnapshot{TotalSims: len(sims)}, nil, nil)
}

func TestEmptyRegistry(t *testing.T) {
	r := New()

	assert.Nil(t, r.Latest())
	assert.Nil(t, r.Sims())

	_, ok := r.Sim("89880001")
	assert.False(t, ok)

	_, ok = r.Account()
	assert.False(t, ok)
}

func TestPublishReplacesWholesale(t *testing.T) {
	r := New()

	r.Publish(result("c1", "89880001", "89880002"))
	require.NotNil(t, r.Latest())
	assert.Equal(t, "c1", r.Latest().CycleID)
	assert.Len(t, r.Sims(), 2)

	_, ok := r.Sim("89880002")
	assert.True(t, ok)

	// The next cycle dropped a SIM; the old record must vanish with it.
	r.Publish(result("c2", "89880001"))
	assert.Equal(t, "c2", r.Latest().CycleID)
	assert.Len(t, r.Sims(), 1)

	_, ok = r.Sim("89880002")
	assert.False(t, ok)

	acct, ok := r.Account()
	require.True(t, ok)
	assert.Equal(t, 1, acct.TotalSims)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	r := New()

	var got []string
	unsub := r.Subscribe(func(pr *model.PollResult) {
		got = append(got, pr.CycleID)
	})

	r.Publish(result("c1", "89880001"))
	r.Publish(result("c2", "89880001"))
	assert.Equal(t, []string{"c1", "c2"}, got)

	unsub()
	r.Publish(result("c3", "89880001"))
	assert.Equal(t, []string{"c1", "c2"}, got)
}

func TestSubscriberSeesCompleteResult(t *testing.T) {
	r := New()

	r.Subscribe(func(pr *model.PollResult) {
		// The published result must already be fully queryable.
		rec, ok := pr.Sim("89880002")
		assert.True(t, ok)
		assert.Equal(t, model.StatusEnabled, rec.Status)
		assert.Equal(t, 2, pr.Account.TotalSims)
	})

	r.Publish(result("c1", "89880001", "89880002"))
}
