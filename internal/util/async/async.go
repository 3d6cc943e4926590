package async

import "context"

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Result is the outcome of a single task.
type Result struct {
	Name string
	Err  error
}

// RunParallel executes all tasks concurrently and waits for every one of
// them. Results are returned in the same order as tasks, regardless of
// completion order.
//
// Example:
//
//	results := RunParallel(ctx, []Task{
//	    {Name: "settings", Func: exportSettings},
//	    {Name: "volumes", Func: exportVolumes},
//	})
//	for _, r := range results {
//	    if r.Err != nil {
//	        log.Printf("%s failed: %v", r.Name, r.Err)
//	    }
//	}
func RunParallel(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	type indexed struct {
		idx int
		err error
	}

	resultChan := make(chan indexed, len(tasks))

	for i, task := range tasks {
		go func() {
			resultChan <- indexed{idx: i, err: task.Func(ctx)}
		}()
	}

	results := make([]Result, len(tasks))
	for range len(tasks) {
		res := <-resultChan
		results[res.idx] = Result{Name: tasks[res.idx].Name, Err: res.err}
	}

	return results
}
