// Package lib provides a Go SDK to run workspace validation tasks programmatically.
//
// A [Client] runs validation batches in the background, runs single validations
// and remediations, and exposes the validation state of the workspaces as
// reports and observation streams. It's the same machinery the valtask CLI uses.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{
//	    APIURL:   "https://testcenter.example.org/api",
//	    APIToken: token,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	report, err := client.RunBatch(ctx, 42, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Batch.Status)
//
// # Background batches
//
// [Client.StartBatch] returns immediately, progress is followed with the watch
// methods:
//
//	states, _ := client.WatchBatch(ctx, 42)
//	done, started, _ := client.StartBatch(ctx, 42, nil)
//	if !started {
//	    // A batch is already running for this workspace.
//	}
//	for st := range states {
//	    fmt.Println(st.Status, st.CurrentStep)
//	}
//	<-done
//
// # Persistence
//
// With [Config].DBPath set the workspace results and batch states are stored in
// SQLite and restored when a workspace is first used. Without it the state only
// lives in the client.
//
// # Errors
//
// Errors can be checked with [errors.Is] against [ErrNotFound], [ErrNotValid],
// [ErrAlreadyRunning], [ErrTaskCreation], [ErrTaskFailed] and [ErrTaskService].
//
// # Testing
//
// Set [Config].TaskService to [TaskServiceFake] to run against an in-process
// task service, optionally scripted with a YAML scenario in [Config].FakeScenario.
package lib
