package translate

import "strconv"

// IDMap assigns short opaque ids (T1, T2, ...) to the tasks of one batch so
// that requests stay compact and key paths never leak into the prompt.
type IDMap struct {
	ids   []string
	tasks map[string]Task
}

// AssignIDs numbers the tasks of a batch in order.
func AssignIDs(batch []Task) *IDMap {
	m := &IDMap{tasks: make(map[string]Task, len(batch))}
	for i, t := range batch {
		id := "T" + strconv.Itoa(i+1)
		m.ids = append(m.ids, id)
		m.tasks[id] = t
	}
	return m
}

// IDs returns the ids in assignment order.
func (m *IDMap) IDs() []string {
	return m.ids
}

// Len returns the number of ids.
func (m *IDMap) Len() int {
	return len(m.ids)
}

// Task returns the task behind id.
func (m *IDMap) Task(id string) (Task, bool) {
	t, ok := m.tasks[id]
	return t, ok
}

// Key returns the key path behind id.
func (m *IDMap) Key(id string) (string, bool) {
	t, ok := m.tasks[id]
	return t.Key, ok
}

// Known reports whether id belongs to this batch.
func (m *IDMap) Known(id string) bool {
	_, ok := m.tasks[id]
	return ok
}
