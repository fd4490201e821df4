package projecttask

import (
	"fmt"
	"strings"
)

// TaskList is a composite task: an ordered group of child tasks. It is
// never dispatched to a runner; only the leaves reachable through it are.
type TaskList struct {
	id    TaskID
	tasks []Task
}

// NewTaskList creates a list of tasks. Its ID is derived from the child
// IDs at construction and is not updated by Add; use NewNamedTaskList to
// choose one.
func NewTaskList(tasks ...Task) *TaskList {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = string(t.ID())
	}
	return &TaskList{
		id:    TaskID("list[" + strings.Join(ids, ",") + "]"),
		tasks: tasks,
	}
}

// NewNamedTaskList creates a list with an explicit ID.
func NewNamedTaskList(id TaskID, tasks ...Task) *TaskList {
	return &TaskList{id: id, tasks: tasks}
}

// ID implements Task.
func (l *TaskList) ID() TaskID { return l.id }

// Name implements Task.
func (l *TaskList) Name() string {
	return fmt.Sprintf("%d task(s)", len(l.tasks))
}

// Dependencies implements Task. Lists carry no dependencies of their own.
func (l *TaskList) Dependencies() []Task { return nil }

// Tasks returns the children in insertion order.
func (l *TaskList) Tasks() []Task {
	return l.tasks
}

// Add appends tasks to the list.
func (l *TaskList) Add(tasks ...Task) {
	l.tasks = append(l.tasks, tasks...)
}

// Len returns the number of direct children.
func (l *TaskList) Len() int {
	return len(l.tasks)
}

// Leaves returns every non-list task reachable from root through lists
// and dependencies, each once, in depth-first order. Lists are always
// expanded; only leaves are deduplicated by ID.
func Leaves(root ...Task) []Task {
	seen := make(map[TaskID]bool)
	open := make(map[*TaskList]bool)
	var out []Task
	var walk func(tasks []Task)
	walk = func(tasks []Task) {
		for _, t := range tasks {
			if t == nil {
				continue
			}
			if l, ok := t.(*TaskList); ok {
				if open[l] {
					continue
				}
				open[l] = true
				walk(l.Tasks())
				delete(open, l)
				continue
			}
			if seen[t.ID()] {
				continue
			}
			seen[t.ID()] = true
			walk(t.Dependencies())
			out = append(out, t)
		}
	}
	walk(root)
	return out
}
