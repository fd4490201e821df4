package projecttask

// Visit walks the graph rooted at root depth-first and calls fn once per
// wave. For every task of a collection, its dependencies (or, for a
// TaskList, its children) are visited first; then the collection itself
// is emitted as a wave.
//
// Waves contain leaf tasks only: lists are expanded, tasks already emitted
// are left out and empty waves are skipped. A cycle stops the walk with a
// *CycleError before fn sees any task of the cycle's collection. An error
// returned by fn stops the walk and is returned as is.
func Visit(root []Task, fn func(wave []Task) error) error {
	v := &visitor{
		fn:         fn,
		emitted:    make(map[TaskID]bool),
		visited:    make(map[TaskID]bool),
		inProgress: make(map[TaskID]int),
		openLists:  make(map[*TaskList]int),
	}
	return v.visit(root)
}

// Waves returns all waves of the graph rooted at root.
func Waves(root ...Task) ([][]Task, error) {
	var waves [][]Task
	err := Visit(root, func(wave []Task) error {
		waves = append(waves, wave)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return waves, nil
}

type visitor struct {
	fn      func([]Task) error
	emitted map[TaskID]bool
	visited map[TaskID]bool

	// inProgress maps a task on the current path to its index in stack.
	inProgress map[TaskID]int
	openLists  map[*TaskList]int
	stack      []TaskID
}

func (v *visitor) visit(tasks []Task) error {
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if l, ok := t.(*TaskList); ok {
			if err := v.visitList(l); err != nil {
				return err
			}
			continue
		}

		id := t.ID()
		if at, ok := v.inProgress[id]; ok {
			return v.cycle(at, id)
		}
		if v.visited[id] {
			continue
		}

		v.inProgress[id] = len(v.stack)
		v.stack = append(v.stack, id)
		err := v.visit(t.Dependencies())
		v.stack = v.stack[:len(v.stack)-1]
		delete(v.inProgress, id)
		if err != nil {
			return err
		}
		v.visited[id] = true
	}
	return v.emit(tasks)
}

// visitList always descends: list IDs are not unique and only leaves
// are deduplicated. A list reached from inside itself is a cycle.
func (v *visitor) visitList(l *TaskList) error {
	if at, ok := v.openLists[l]; ok {
		return v.cycle(at, l.ID())
	}
	v.openLists[l] = len(v.stack)
	v.stack = append(v.stack, l.ID())
	err := v.visit(l.Tasks())
	v.stack = v.stack[:len(v.stack)-1]
	delete(v.openLists, l)
	return err
}

func (v *visitor) cycle(at int, id TaskID) error {
	path := append(append([]TaskID(nil), v.stack[at:]...), id)
	return &CycleError{Path: path}
}

func (v *visitor) emit(tasks []Task) error {
	var wave []Task
	var add func([]Task)
	add = func(ts []Task) {
		for _, t := range ts {
			if t == nil {
				continue
			}
			if l, ok := t.(*TaskList); ok {
				add(l.Tasks())
				continue
			}
			if v.emitted[t.ID()] {
				continue
			}
			v.emitted[t.ID()] = true
			wave = append(wave, t)
		}
	}
	add(tasks)

	if len(wave) == 0 {
		return nil
	}
	return v.fn(wave)
}
