package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterEndToEnd(t *testing.T) {
	r := newRegistry()
	db := &mockComponent{name: "db"}
	res := r.register(db, PositionEnd, "", false, false)
	require.True(t, res.Success)
	assert.Equal(t, CodeOK, res.Code)
	assert.True(t, r.has("db"))
	assert.Equal(t, []string{"db"}, res.StartupOrder)
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := newRegistry()
	r.register(&mockComponent{name: "db"}, PositionEnd, "", false, false)
	res := r.register(&mockComponent{name: "db"}, PositionEnd, "", false, false)
	assert.False(t, res.Success)
	assert.Equal(t, CodeDuplicateName, res.Code)
}

func TestRegistry_DuplicateInstance(t *testing.T) {
	r := newRegistry()
	db := &mockComponent{name: "db"}
	r.register(db, PositionEnd, "", false, false)
	// Same *instance*, would-be different logical name check happens before
	// instance check fires only if names differ; force instance collision by
	// reusing the identical pointer with the same name already covers this,
	// but to specifically hit duplicate_instance (not duplicate_name) we'd
	// need distinct names on the same pointer, which Component.Name() won't
	// allow. Duplicate-instance is therefore exercised via direct pointer
	// reuse at the same name, which duplicate-name short-circuits first in
	// this implementation — both are rejections, so assert rejection.
	res := r.register(db, PositionEnd, "", false, false)
	assert.False(t, res.Success)
}

func TestRegistry_InvalidName(t *testing.T) {
	r := newRegistry()
	res := r.register(&mockComponent{name: "Bad_Name"}, PositionEnd, "", false, false)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrInvalidComponentName)
}

func TestRegistry_CycleRejectedLeavesRegistryUnchanged(t *testing.T) {
	r := newRegistry()
	r.register(&mockComponent{name: "a", deps: []string{"b"}}, PositionEnd, "", false, false)
	before := r.len()
	res := r.register(&mockComponent{name: "b", deps: []string{"a"}}, PositionEnd, "", false, false)
	assert.False(t, res.Success)
	assert.Equal(t, CodeDependencyCycle, res.Code)
	assert.Equal(t, before, r.len())
	assert.False(t, r.has("b"))
}

func TestRegistry_InsertBefore(t *testing.T) {
	r := newRegistry()
	r.register(&mockComponent{name: "a"}, PositionEnd, "", false, false)
	r.register(&mockComponent{name: "c"}, PositionEnd, "", false, false)
	res := r.register(&mockComponent{name: "b"}, PositionBefore, "c", false, false)
	require.True(t, res.Success)
	assert.Equal(t, []string{"a", "b", "c"}, r.names())
}

func TestRegistry_InsertTargetNotFound(t *testing.T) {
	r := newRegistry()
	res := r.register(&mockComponent{name: "a"}, PositionAfter, "ghost", false, false)
	assert.False(t, res.Success)
	assert.Equal(t, CodeTargetNotFound, res.Code)
	assert.False(t, res.TargetFound)
}

func TestRegistry_UnregisterRejectsRunningDependents(t *testing.T) {
	r := newRegistry()
	r.register(&mockComponent{name: "db"}, PositionEnd, "", false, false)
	r.register(&mockComponent{name: "web", deps: []string{"db"}}, PositionEnd, "", false, false)
	webEntry, _ := r.get("web")
	webEntry.state.tryBeginStart()
	webEntry.state.toRunning(time.Now())

	err := r.unregister("db")
	assert.ErrorIs(t, err, ErrHasRunningDependents)
}

func TestRegistry_ValidateDependenciesReportsMissingAndCycles(t *testing.T) {
	r := newRegistry()
	// Register api with a missing dependency through the normal path: the
	// resolver ignores unknown names and a missing dep alone is not a cycle,
	// so registration succeeds.
	r.register(&mockComponent{name: "api", deps: []string{"ghost"}}, PositionEnd, "", false, false)
	missing, cycles := r.validateDependencies()
	require.Len(t, missing, 1)
	assert.Equal(t, "ghost", missing[0].MissingName)
	assert.Empty(t, cycles)
}
