package memvault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denticlinic/api/internal/rbac"
)

func allMemories(t *testing.T) map[string]MemoryV1 {
	t.Helper()
	memories := map[string]MemoryV1{}
	for _, scope := range Scopes() {
		memory, err := Build(testCanonical(), testTruth(), scope)
		require.NoError(t, err)
		memories[scope] = memory
	}
	return memories
}

func TestContextPackScopeSelection(t *testing.T) {
	memories := allMemories(t)

	internal := ContextPack(rbac.RoleAdmin, memories)
	assert.Contains(t, internal, "source: instagram")

	doctor := ContextPack(rbac.RoleDoctor, memories)
	assert.Contains(t, doctor, "phone: +90 532 111 22 33")
	assert.NotContains(t, doctor, "source: instagram")

	patient := ContextPack(rbac.RolePatient, memories)
	assert.NotContains(t, patient, "+90 532 111 22 33")
	assert.NotContains(t, patient, "elif@example.com")
	assert.Contains(t, patient, "treatment_interest")
}

func TestContextPackFallsBackToLowerScope(t *testing.T) {
	memories := allMemories(t)
	delete(memories, ScopeInternal)
	delete(memories, ScopeDoctor)

	pack := ContextPack(rbac.RoleAdmin, memories)
	assert.NotEqual(t, NoMemoryAvailable, pack)
	assert.NotContains(t, pack, "phone:")
}

func TestContextPackPatientNeverFallsUp(t *testing.T) {
	memories := allMemories(t)
	delete(memories, ScopePatient)

	pack := ContextPack(rbac.RolePatient, memories)
	assert.Equal(t, NoMemoryAvailable, pack)
}

func TestContextPackNoMemories(t *testing.T) {
	assert.Equal(t, NoMemoryAvailable, ContextPack(rbac.RoleAdmin, nil))
	assert.Equal(t, NoMemoryAvailable, ContextPack(rbac.Role("guest"), map[string]MemoryV1{}))
}

func TestContextPackSections(t *testing.T) {
	memories := allMemories(t)
	pack := ContextPack(rbac.RoleEmployee, memories)

	assert.Contains(t, pack, "Facts:")
	assert.Contains(t, pack, "What happened:")
	assert.Contains(t, pack, "Next action:")
	assert.Contains(t, pack, "Open questions:")
	assert.Contains(t, pack, "Missing info:")
	assert.Contains(t, pack, "Confirm consult (within 24h)")
}

func TestMemoryNoteRoundTrip(t *testing.T) {
	memory, err := Build(testCanonical(), testTruth(), ScopeDoctor)
	require.NoError(t, err)

	encoded, err := EncodeNote(memory)
	require.NoError(t, err)

	scope, ok := IsNote(encoded)
	require.True(t, ok)
	assert.Equal(t, ScopeDoctor, scope)

	decoded, err := DecodeNote(encoded)
	require.NoError(t, err)
	assert.Equal(t, memory.LeadID, decoded.LeadID)
	assert.Equal(t, memory.Facts, decoded.Facts)
	assert.Equal(t, memory.Scope, decoded.Scope)
}

func TestDecodeNoteRejectsOtherTags(t *testing.T) {
	_, err := DecodeNote("[AI_CANONICAL_NOTE v1.1]\n{}")
	assert.Error(t, err)
}
