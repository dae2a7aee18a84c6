package filterselect

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatEngine(t *testing.T, labels ...string) *Engine {
	t.Helper()
	options := make([]Option, len(labels))
	for i, l := range labels {
		options[i] = Option{Label: l}
	}
	e := New()
	require.True(t, e.Initialize(Source{Options: options}, false))
	return e
}

func groupedEngine(t *testing.T, defaultChecked bool) *Engine {
	t.Helper()
	e := New()
	require.True(t, e.Initialize(Source{Groups: []Group{
		{Name: "A", Labels: []string{"x", "y"}},
		{Name: "B", Labels: []string{"z"}},
	}}, defaultChecked))
	return e
}

func countChecked(options []Option) int {
	n := 0
	for _, o := range options {
		if o.Checked {
			n++
		}
	}
	return n
}

func TestToggleSingleOption(t *testing.T) {
	e := flatEngine(t, "a", "b", "c")

	e.Toggle("b")

	assert.Equal(t, 1, e.SelectedCount())
	assert.False(t, e.IsSelectAll())
	assert.Equal(t, []Option{
		{Label: "a", Checked: false},
		{Label: "b", Checked: true},
		{Label: "c", Checked: false},
	}, e.Options())
}

func TestToggleUnknownLabelIsNoop(t *testing.T) {
	e := flatEngine(t, "a", "b")
	e.Toggle("missing")

	assert.Equal(t, 0, e.SelectedCount())
	assert.False(t, e.Touched())
}

func TestToggleSequencesKeepAggregatesConsistent(t *testing.T) {
	labels := []string{"a", "b", "c", "d", "e"}
	e := flatEngine(t, labels...)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		e.Toggle(labels[rng.Intn(len(labels))])

		options := e.Options()
		n := countChecked(options)
		require.Equal(t, n, e.SelectedCount(), "step %d", i)
		require.Equal(t, n == len(options) && len(options) > 0, e.IsSelectAll(), "step %d", i)
	}
}

func TestToggleReturnsToSelectAllWhenComplete(t *testing.T) {
	e := flatEngine(t, "a", "b")
	e.Toggle("a")
	e.Toggle("b")

	assert.True(t, e.IsSelectAll())
}

func TestSelectAllThenUnselectAllRestoresInitialState(t *testing.T) {
	e := flatEngine(t, "a", "b", "c")
	initial := e.Options()

	e.SelectAll()
	assert.True(t, e.IsSelectAll())
	assert.Equal(t, 3, e.SelectedCount())

	e.UnselectAll()
	assert.False(t, e.IsSelectAll())
	assert.Equal(t, 0, e.SelectedCount())
	assert.Equal(t, initial, e.Options())
}

func TestSelectAllOnEmptyEngine(t *testing.T) {
	e := New()
	require.True(t, e.Initialize(Source{}, true))

	e.SelectAll()
	assert.False(t, e.IsSelectAll())
	assert.Equal(t, 0, e.SelectedCount())
}

func TestToggleGroupRoundTrip(t *testing.T) {
	e := New()
	require.True(t, e.Initialize(Source{Groups: []Group{
		{Name: "A", Labels: []string{"x", "y"}},
		{Name: "B", Labels: []string{"z", "w"}},
	}}, false))
	e.ToggleGroupItem("A", "x")
	e.ToggleGroupItem("B", "w")
	before := e.Options()

	e.ToggleGroup("A", true)
	e.ToggleGroup("A", false)

	after := e.Options()
	for i := range before {
		if before[i].Group == "B" {
			assert.Equal(t, before[i], after[i])
			continue
		}
		assert.False(t, after[i].Checked)
	}
	assert.Equal(t, countChecked(after), e.SelectedCount())
}

func TestToggleGroupOnUncheckedGroupRestoresExactly(t *testing.T) {
	e := groupedEngine(t, false)
	e.ToggleGroupItem("B", "z")
	before := e.Options()

	e.ToggleGroup("A", true)
	assert.True(t, e.GroupState("A").AllSelected)
	e.ToggleGroup("A", false)

	assert.Equal(t, before, e.Options())
	assert.Equal(t, 1, e.SelectedCount())
}

func TestToggleGroupUnknownGroupIsNoop(t *testing.T) {
	e := groupedEngine(t, false)
	e.ToggleGroup("nope", true)

	assert.Equal(t, 0, e.SelectedCount())
	assert.False(t, e.Touched())
}

func TestGroupedInitializeSubmitsSelectAll(t *testing.T) {
	e := groupedEngine(t, true)

	snap := e.Submit()
	assert.True(t, snap.IsSelectAll)
	assert.Equal(t, 3, snap.SelectedCount)
	assert.Equal(t, map[string][]string{"A": {"x", "y"}, "B": {"z"}}, snap.Groups)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_select_all":true,"selected_count":3,"grouped":true,"filters":{"A":["x","y"],"B":["z"]}}`, string(data))
}

func TestGroupedSubmitKeepsEmptyCategories(t *testing.T) {
	e := groupedEngine(t, true)
	e.ToggleGroup("B", false)

	snap := e.Submit()
	assert.False(t, snap.IsSelectAll)
	assert.Equal(t, 2, snap.SelectedCount)
	require.Contains(t, snap.Groups, "B")
	assert.Empty(t, snap.Groups["B"])
}

func TestInitializeTwiceIsIgnored(t *testing.T) {
	e := flatEngine(t, "a")
	assert.False(t, e.Initialize(Source{Options: []Option{{Label: "b"}, {Label: "c"}}}, true))
	assert.Equal(t, 1, e.Len())

	e.Reset()
	assert.False(t, e.Initialized())
	assert.True(t, e.Initialize(Source{Options: []Option{{Label: "b"}, {Label: "c"}}}, true))
	assert.Equal(t, 2, e.Len())
	assert.True(t, e.IsSelectAll())
}

func TestToggleDuplicateLabelAcrossGroups(t *testing.T) {
	e := New()
	require.True(t, e.Initialize(Source{Groups: []Group{
		{Name: "A", Labels: []string{"shared", "a"}},
		{Name: "B", Labels: []string{"shared"}},
	}}, false))

	e.Toggle("shared")
	assert.Equal(t, 2, e.SelectedCount())
	assert.Equal(t, GroupState{Total: 1, Selected: 1, AllSelected: true}, e.GroupState("B"))
	assert.Equal(t, GroupState{Total: 2, Selected: 1, SomeSelected: true}, e.GroupState("A"))
}

func TestToggleGroupItemWithoutLabelFlipsGroup(t *testing.T) {
	e := groupedEngine(t, false)
	e.ToggleGroupItem("A", "x")

	// partially selected -> check the rest
	e.ToggleGroupItem("A", "")
	assert.True(t, e.GroupState("A").AllSelected)

	// fully selected -> clear
	e.ToggleGroupItem("A", "")
	assert.Equal(t, 0, e.GroupState("A").Selected)
}

func TestManualToggleDoesNotClaimSelectAllOnPartialLoad(t *testing.T) {
	e := flatEngine(t, "a", "b")
	e.SetPartial(true)

	e.Toggle("a")
	e.Toggle("b")
	assert.Equal(t, 2, e.SelectedCount())
	assert.False(t, e.IsSelectAll())

	e.SelectAll()
	assert.True(t, e.IsSelectAll())
}

func TestBulkLoadAfterManualToggleNeverSetsSelectAll(t *testing.T) {
	e := flatEngine(t, "a", "b")
	e.Toggle("a")
	require.False(t, e.IsSelectAll())

	e.SetOptions([]Option{{Label: "a", Checked: true}, {Label: "b", Checked: true}})
	assert.Equal(t, 2, e.SelectedCount())
	assert.False(t, e.IsSelectAll())
}

func TestSelectAllAfterManualToggleKeepsLatch(t *testing.T) {
	e := flatEngine(t, "a", "b")
	e.Toggle("a")
	e.SelectAll()
	require.True(t, e.IsSelectAll())
	assert.True(t, e.Touched(), "only Reset clears the latch")

	e.SetOptions([]Option{{Label: "a", Checked: true}, {Label: "b", Checked: true}})
	assert.True(t, e.IsSelectAll(), "a bulk load keeps select-all while everything is checked")

	e.SetOptions([]Option{{Label: "a", Checked: true}, {Label: "b"}})
	assert.False(t, e.IsSelectAll())

	e.SetOptions([]Option{{Label: "a", Checked: true}, {Label: "b", Checked: true}})
	assert.False(t, e.IsSelectAll(), "a latched engine never regains select-all from data")

	e.Reset()
	assert.False(t, e.Touched())
}

func TestBulkLoadBeforeTouchRecomputes(t *testing.T) {
	e := flatEngine(t, "a")
	e.SetOptions([]Option{{Label: "a", Checked: true}, {Label: "b", Checked: true}})
	assert.True(t, e.IsSelectAll())
}

func TestAppendOptionsUnderSelectAllArriveChecked(t *testing.T) {
	e := flatEngine(t, "a", "b")
	e.SelectAll()

	e.AppendOptions([]Option{{Label: "c"}, {Label: "d"}})
	assert.Equal(t, 4, e.SelectedCount())
	assert.True(t, e.IsSelectAll())
}

func TestAppendOptionsWithoutSelectAll(t *testing.T) {
	e := flatEngine(t, "a", "b")
	e.Toggle("a")
	e.AppendOptions([]Option{{Label: "c"}})

	assert.Equal(t, 1, e.SelectedCount())
	assert.False(t, e.IsSelectAll())
}

func TestSearchDoesNotMutateOptions(t *testing.T) {
	e := flatEngine(t, "Alpha", "beta", "ALPINE", "gamma")
	e.Toggle("beta")
	before := e.Options()

	view := e.Search("alp")
	assert.Equal(t, 2, view.Total)
	assert.Equal(t, []string{"Alpha", "ALPINE"}, labels(view.Items))
	assert.False(t, view.HasMore)
	assert.Equal(t, before, e.Options())
	assert.Equal(t, 1, e.SelectedCount())

	view = e.Search("  ")
	assert.Equal(t, 4, view.Total)
}

func TestWindowedView(t *testing.T) {
	e := NewWithWindow(2)
	options := make([]Option, 5)
	for i := range options {
		options[i] = Option{Label: fmt.Sprintf("item-%d", i)}
	}
	require.True(t, e.Initialize(Source{Options: options}, false))

	view := e.View()
	assert.Len(t, view.Items, 2)
	assert.True(t, view.HasMore)

	view = e.LoadMore()
	assert.Len(t, view.Items, 4)

	view = e.LoadMore()
	assert.Len(t, view.Items, 5)
	assert.False(t, view.HasMore)

	// a search shows every match; clearing it restores the first window
	view = e.Search("item")
	assert.Len(t, view.Items, 5)
	view = e.Search("")
	assert.Len(t, view.Items, 2)
}

func TestAlphabetIndex(t *testing.T) {
	e := flatEngine(t, "banana", "apple", "Avocado", "cherry")

	assert.Equal(t, []string{"A", "B", "C"}, e.Alphabet())
	assert.Len(t, e.ByLetter()["A"], 2)
}

func TestByGroupKeepsEmptyCategoriesUnderSearch(t *testing.T) {
	e := groupedEngine(t, false)
	e.Search("z")

	buckets := e.ByGroup()
	assert.Empty(t, buckets["A"])
	assert.Len(t, buckets["B"], 1)
}

func TestSnapshotJSONRoundTripAndRestore(t *testing.T) {
	e := flatEngine(t, "a", "b", "c")
	e.Toggle("c")

	data, err := json.Marshal(e.Submit())
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_select_all":false,"selected_count":1,"filters":[{"label":"a","checked":false},{"label":"b","checked":false},{"label":"c","checked":true}]}`, string(data))

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	other := flatEngine(t, "a", "b", "c", "d")
	other.Restore(snap)
	assert.Equal(t, 1, other.SelectedCount())
	assert.True(t, other.Options()[2].Checked)
}

func TestRestoreGroupedSelectAll(t *testing.T) {
	e := groupedEngine(t, false)
	e.Restore(Snapshot{Grouped: true, IsSelectAll: true})
	assert.True(t, e.IsSelectAll())
	assert.Equal(t, 3, e.SelectedCount())
}

func labels(options []Option) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Label
	}
	return out
}
