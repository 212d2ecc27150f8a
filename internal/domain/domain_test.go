package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const folderUUID = "3f2b8c1e-9d4a-4b6e-8f1a-2c3d4e5f6a7b"

func TestVectorClock_Merge(t *testing.T) {
	a := VectorClock{"alice": 1, "bob": 3}
	b := VectorClock{"alice": 2, "carol": 1}

	merged := a.Merge(b)

	assert.Equal(t, VectorClock{"alice": 2, "bob": 3, "carol": 1}, merged)
	assert.Equal(t, VectorClock{"alice": 1, "bob": 3}, a, "merge must not mutate the receiver")
}

func TestVectorClock_Compare(t *testing.T) {
	tests := []struct {
		name  string
		a, b  VectorClock
		order Ordering
	}{
		{"empty", VectorClock{}, nil, Equal},
		{"same", VectorClock{"alice": 2}, VectorClock{"alice": 2}, Equal},
		{"zero entries ignored", VectorClock{"alice": 1}, VectorClock{"alice": 1, "bob": 0}, Equal},
		{"before", VectorClock{"alice": 1}, VectorClock{"alice": 2}, Before},
		{"before by new actor", VectorClock{"alice": 1}, VectorClock{"alice": 1, "bob": 1}, Before},
		{"after", VectorClock{"alice": 3, "bob": 1}, VectorClock{"alice": 2}, After},
		{"concurrent", VectorClock{"alice": 1}, VectorClock{"bob": 1}, Concurrent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.order.String(), tt.a.Compare(tt.b).String())
		})
	}
}

func TestVectorClock_TickNeverLowers(t *testing.T) {
	vc := VectorClock{"alice": 3}

	assert.Equal(t, uint64(3), vc.Tick("alice", 2)["alice"])
	assert.Equal(t, uint64(4), vc.Tick("alice", 4)["alice"])
	assert.Equal(t, VectorClock{"alice": 3, "bob": 1}, vc.Tick("bob", 1))
	assert.Equal(t, uint64(3), vc["alice"])
}

func TestChangeInput_Validate(t *testing.T) {
	valid := ChangeInput{
		ProjectID:  "project-1",
		ChangeType: ChangeFolderRenamed,
		EntityType: EntityFolder,
		EntityID:   folderUUID,
		NewValue:   json.RawMessage(`{"name":"Hooks"}`),
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*ChangeInput)
	}{
		{"missing project", func(in *ChangeInput) { in.ProjectID = "  " }},
		{"project with spaces", func(in *ChangeInput) { in.ProjectID = "my project" }},
		{"project with topic wildcard", func(in *ChangeInput) { in.ProjectID = "#" }},
		{"project with dot", func(in *ChangeInput) { in.ProjectID = "project.1" }},
		{"project with star", func(in *ChangeInput) { in.ProjectID = "project-*" }},
		{"camel case change type", func(in *ChangeInput) { in.ChangeType = "folderRenamed" }},
		{"missing entity type", func(in *ChangeInput) { in.EntityType = "" }},
		{"malformed new value", func(in *ChangeInput) { in.NewValue = json.RawMessage(`{"name":`) }},
		{"malformed old value", func(in *ChangeInput) { in.OldValue = json.RawMessage(`nope`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			assert.ErrorIs(t, in.Validate(), ErrInvalidInput)
		})
	}
}

func TestChangeInput_UnknownButWellFormedTypeIsValid(t *testing.T) {
	in := ChangeInput{ProjectID: "project-1", ChangeType: "video_trimmed", EntityType: EntityVideo}
	assert.NoError(t, in.Validate())
	assert.False(t, in.ChangeType.Known())
	assert.True(t, ChangeVideoMoved.Known())
}

func TestNormalizeEntityID(t *testing.T) {
	id := NormalizeEntityID(folderUUID)
	require.NotNil(t, id)
	assert.Equal(t, folderUUID, *id)

	assert.Nil(t, NormalizeEntityID(""))
	assert.Nil(t, NormalizeEntityID("reel-42"))
	assert.Nil(t, NormalizeEntityID("3f2b8c1e9d4a4b6e8f1a2c3d4e5f6a7b"), "unhyphenated form is rejected")
}

func TestPresenceRecord_IsStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Second

	assert.False(t, PresenceRecord{LastSeen: now}.IsStale(now, window))
	assert.False(t, PresenceRecord{LastSeen: now.Add(-window)}.IsStale(now, window))
	assert.True(t, PresenceRecord{LastSeen: now.Add(-window - time.Nanosecond)}.IsStale(now, window))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "alice", DisplayName("user_alice"))
	assert.Equal(t, "3f2b8c1e", DisplayName("user_"+folderUUID))
	assert.Equal(t, "bob", DisplayName("bob"))
}

func TestChangeRecord_CloneIsDeep(t *testing.T) {
	id := folderUUID
	orig := ChangeRecord{
		EntityID: &id,
		NewValue: json.RawMessage(`{"a":1}`),
		Clock:    VectorClock{"alice": 1},
	}

	clone := orig.Clone()
	*clone.EntityID = "changed"
	clone.NewValue[2] = 'b'
	clone.Clock["alice"] = 9

	assert.Equal(t, folderUUID, *orig.EntityID)
	assert.Equal(t, `{"a":1}`, string(orig.NewValue))
	assert.Equal(t, uint64(1), orig.Clock["alice"])
}
