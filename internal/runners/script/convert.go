package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/runners/process"
)

func stringList(L *lua.LState, values []string) *lua.LTable {
	t := L.NewTable()
	for _, v := range values {
		t.Append(lua.LString(v))
	}
	return t
}

func taskTable(L *lua.LState, task projecttask.Task) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(task.ID()))
	t.RawSetString("name", lua.LString(task.Name()))

	deps := make([]string, 0, len(task.Dependencies()))
	for _, d := range task.Dependencies() {
		deps = append(deps, string(d.ID()))
	}
	t.RawSetString("dependencies", stringList(L, deps))

	kind := "task"
	switch v := task.(type) {
	case *projecttask.ModuleBuildTask:
		kind = "module_build"
		t.RawSetString("module", lua.LString(v.Module))
		t.RawSetString("incremental", lua.LBool(v.Incremental))
	case *projecttask.FilesBuildTask:
		kind = "files_build"
		t.RawSetString("files", stringList(L, v.Files))
	case *projecttask.RunConfigurationTask:
		kind = "run_configuration"
		t.RawSetString("configuration", lua.LString(v.Configuration))
	case *projecttask.EmptyTask:
		kind = "empty"
	case *process.CommandTask:
		kind = "command"
		t.RawSetString("command", lua.LString(v.Command))
		t.RawSetString("args", stringList(L, v.Args))
		t.RawSetString("source", lua.LString(v.Source))
		t.RawSetString("group", lua.LString(v.Group))
	}
	t.RawSetString("kind", lua.LString(kind))
	return t
}

func contextTable(L *lua.LState, tc *projecttask.TaskContext) *lua.LTable {
	t := L.NewTable()
	if tc == nil {
		return t
	}
	t.RawSetString("session_id", lua.LString(tc.SessionID))
	t.RawSetString("run_configuration", lua.LString(tc.RunConfiguration))
	t.RawSetString("auto_run", lua.LBool(tc.AutoRun))
	t.RawSetString("generated", L.NewFunction(func(L *lua.LState) int {
		tc.FileGenerated(L.CheckString(1), L.CheckString(2))
		return 0
	}))
	return t
}

// resultFrom converts the value returned by run into a batch result.
func resultFrom(v lua.LValue, tasks []projecttask.Task, tc *projecttask.TaskContext) *projecttask.Result {
	aborted, hasErrors := false, false
	failed := make(map[projecttask.TaskID]bool)

	switch v.Type() {
	case lua.LTNil:
	case lua.LTBool:
		hasErrors = !lua.LVAsBool(v)
	case lua.LTString:
		switch lua.LVAsString(v) {
		case "ok", "success", "succeeded":
		case "aborted", "canceled", "skipped":
			aborted = true
		default:
			hasErrors = true
		}
	case lua.LTTable:
		t := v.(*lua.LTable)
		aborted = lua.LVAsBool(t.RawGetString("aborted"))
		hasErrors = lua.LVAsBool(t.RawGetString("errors"))
		if list, ok := t.RawGetString("failed").(*lua.LTable); ok {
			list.ForEach(func(_, id lua.LValue) {
				failed[projecttask.TaskID(id.String())] = true
			})
		}
	default:
		hasErrors = true
	}

	res := &projecttask.Result{
		Aborted: aborted,
		States:  make(map[projecttask.TaskID]projecttask.TaskState, len(tasks)),
		Context: tc,
	}
	for _, task := range tasks {
		taskFailed := failed[task.ID()] || (hasErrors && len(failed) == 0)
		if taskFailed {
			res.HasErrors = true
		}
		res.States[task.ID()] = projecttask.StateFor(aborted, taskFailed)
	}
	if hasErrors {
		res.HasErrors = true
	}
	return res
}
