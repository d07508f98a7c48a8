package requestctx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudget_AddTokens_WarningLatchedOnce(t *testing.T) {
	b := NewBudget(100)

	require.Equal(t, BudgetOk, b.AddTokens(50))
	require.Equal(t, BudgetWarning, b.AddTokens(35)) // crosses 80
	require.Equal(t, BudgetOk, b.AddTokens(1))       // still below 100, warning already latched
}

func TestBudget_AddTokens_ExhaustedEveryCall(t *testing.T) {
	b := NewBudget(100)

	require.Equal(t, BudgetOk, b.AddTokens(99))
	require.Equal(t, BudgetExhausted, b.AddTokens(1))
	require.Equal(t, BudgetExhausted, b.AddTokens(1))
}

func TestBudget_Percentage(t *testing.T) {
	b := NewBudget(200)
	b.AddTokens(100)
	assert.Equal(t, 50, b.Percentage())
}

func TestBudget_ConcurrentAdds(t *testing.T) {
	b := NewBudget(1_000_000)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.AddTokens(10)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, b.TokensUsed())
}

func TestCancellation_ChildTrippedByParent(t *testing.T) {
	parent := NewCancellation()
	child := parent.NewChild()

	require.False(t, child.IsCancelled())
	parent.Cancel()
	assert.True(t, child.IsCancelled())
}

func TestCancellation_ChildDoesNotAffectParent(t *testing.T) {
	parent := NewCancellation()
	child := parent.NewChild()

	child.Cancel()
	assert.True(t, child.IsCancelled())
	assert.False(t, parent.IsCancelled())
}

func TestCancellation_SiblingsIndependent(t *testing.T) {
	parent := NewCancellation()
	a := parent.NewChild()
	b := parent.NewChild()

	a.Cancel()
	assert.True(t, a.IsCancelled())
	assert.False(t, b.IsCancelled())
}

func TestCycleDetector_RejectsDuplicateAtSameDepth(t *testing.T) {
	d := NewCycleDetector()

	res := d.CheckAndRegister("Look up X", 1)
	require.False(t, res.Cycle)

	res = d.CheckAndRegister("look up   X.", 1)
	require.True(t, res.Cycle)
	assert.Contains(t, res.Description, "look up x")
}

func TestCycleDetector_RejectsDuplicateAtShallowerDepth(t *testing.T) {
	d := NewCycleDetector()

	_ = d.CheckAndRegister("Research topic", 0)
	res := d.CheckAndRegister("research topic", 2)
	assert.True(t, res.Cycle)
}

func TestCycleDetector_AllowsDifferentTasks(t *testing.T) {
	d := NewCycleDetector()

	res1 := d.CheckAndRegister("Research A", 1)
	res2 := d.CheckAndRegister("Research B", 1)

	assert.False(t, res1.Cycle)
	assert.False(t, res2.Cycle)
}

func TestNormalizeTask(t *testing.T) {
	cases := map[string]string{
		"  Hello   World  ": "hello world",
		"Look up X":         "look up x",
		"look up   X.":      "look up x",
		"A & B <details>":   "a b details",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeTask(in), "input: %q", in)
	}
}

func TestRequestContext_ChildIncrementsDepth(t *testing.T) {
	rc := New(1000)
	child := rc.Child()

	assert.Equal(t, 0, rc.Depth)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, rc.RequestID, child.RequestID)
}

func TestRequestContext_ChildSharesBudgetAndCycleDetector(t *testing.T) {
	rc := New(1000)
	child := rc.Child()

	child.Budget.AddTokens(10)
	assert.Equal(t, 10, rc.Budget.TokensUsed())

	assert.Same(t, rc.CycleDetector, child.CycleDetector)
}

func TestRequestContext_CancelPropagatesToChild(t *testing.T) {
	rc := New(1000)
	child := rc.Child()

	rc.Cancel()
	assert.True(t, child.IsCancelled())
}

func TestRegistry_RegisterCancelEvict(t *testing.T) {
	reg := NewRegistry()
	rc := New(1000)

	reg.Register(rc.RequestID, rc.Cancellation)
	require.True(t, reg.Cancel(rc.RequestID))
	assert.True(t, rc.IsCancelled())

	reg.Evict(rc.RequestID)
	assert.False(t, reg.Cancel(rc.RequestID))
}
