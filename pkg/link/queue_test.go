// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "testing"

func TestCoalescingQueue_UpsertReplacesSameKey(t *testing.T) {
	q := NewCoalescingQueue(4)

	if !q.Upsert(MsgOutputControl, 5, []byte{1}) {
		t.Fatal("first upsert should succeed")
	}
	if !q.Upsert(MsgOutputControl, 5, []byte{2}) {
		t.Fatal("second upsert for same key should succeed")
	}
	if q.Len() != 1 {
		t.Fatalf("expected coalescing to keep queue length 1, got %d", q.Len())
	}

	e, ok := q.Peek()
	if !ok {
		t.Fatal("expected an entry")
	}
	if len(e.Payload) != 1 || e.Payload[0] != 2 {
		t.Errorf("expected the newer payload to win, got %v", e.Payload)
	}
}

func TestCoalescingQueue_PriorityOrder(t *testing.T) {
	q := NewCoalescingQueue(4)
	q.Upsert(MsgOutputControl, 1, []byte("low"))
	q.Upsert(MsgAltControl, 9, []byte("high"))
	q.Upsert(MsgPidSettings, 5, []byte("mid"))

	want := []MessageType{MsgAltControl, MsgPidSettings, MsgOutputControl}
	for i, k := range want {
		e, ok := q.Pop()
		if !ok {
			t.Fatalf("entry %d: queue exhausted early", i)
		}
		if e.Key != k {
			t.Errorf("entry %d: want key %v, got %v", i, k, e.Key)
		}
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after draining, got len %d", q.Len())
	}
}

func TestCoalescingQueue_TiesBrokenByNewerSeq(t *testing.T) {
	q := NewCoalescingQueue(4)
	q.Upsert(MsgOutputControl, 5, []byte("older"))
	q.Upsert(MsgAltControl, 5, []byte("newer"))

	e, ok := q.Pop()
	if !ok {
		t.Fatal("expected an entry")
	}
	if e.Key != MsgAltControl {
		t.Errorf("expected the more-recently-upserted entry to win the tie, got key %v", e.Key)
	}
}

func TestCoalescingQueue_FullRejectsNewKey(t *testing.T) {
	q := NewCoalescingQueue(2)
	if !q.Upsert(MsgOutputControl, 1, nil) {
		t.Fatal("upsert 1 should succeed")
	}
	if !q.Upsert(MsgAltControl, 1, nil) {
		t.Fatal("upsert 2 should succeed")
	}
	if q.Upsert(MsgPidSettings, 1, nil) {
		t.Fatal("upsert of a third distinct key into a full capacity-2 queue should fail")
	}
	// Re-upserting an existing key must still succeed even when full.
	if !q.Upsert(MsgOutputControl, 2, []byte("updated")) {
		t.Fatal("upsert of an already-queued key must succeed even when full")
	}
}

func TestCoalescingQueue_Invalidate(t *testing.T) {
	q := NewCoalescingQueue(4)
	q.Upsert(MsgOutputControl, 1, nil)
	q.Upsert(MsgAltControl, 1, nil)

	if !q.Invalidate(MsgOutputControl) {
		t.Fatal("expected Invalidate to find and remove the entry")
	}
	if q.Invalidate(MsgOutputControl) {
		t.Fatal("second Invalidate of the same key should report nothing removed")
	}
	if q.Len() != 1 {
		t.Errorf("expected one remaining entry, got %d", q.Len())
	}
}

func TestCoalescingQueue_DrainAllEmptiesQueue(t *testing.T) {
	q := NewCoalescingQueue(8)
	keys := []MessageType{MsgOutputControl, MsgAltControl, MsgPidSettings, MsgPumpModel}
	for i, k := range keys {
		q.Upsert(k, uint8(i), nil)
	}

	drained := q.DrainAll()
	if len(drained) != len(keys) {
		t.Fatalf("expected %d drained entries, got %d", len(keys), len(drained))
	}
	if q.Len() != 0 {
		t.Errorf("expected queue empty after DrainAll, got len %d", q.Len())
	}
	// Highest priority (index 3, prio 3) should drain first.
	if drained[0].Key != MsgPumpModel {
		t.Errorf("expected highest-priority entry first, got %v", drained[0].Key)
	}
}
