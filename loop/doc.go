// Package loop implements a bounded critique/refine cycle.
//
// A Loop alternates two injected steps over an evolving document: a Critic
// that returns feedback and a Refiner that applies it. The refiner ends the
// cycle by returning Refinement{Exit: true}; otherwise the loop stops after
// a fixed number of iterations. The returned Result tells the two outcomes
// apart through Converged and Iterations.
//
//	l := loop.New(critic, loop.ExitOnSentinel(loop.DefaultSentinel, refiner),
//	    loop.WithMaxIterations(5),
//	    loop.WithStepTimeout(30*time.Second),
//	)
//	res, err := l.Run(ctx, draft)
//
// Steps execute strictly one after another. Step failures are returned as
// *StepError together with the last known good document; an iteration cap
// below one is rejected with *ConfigError before any step runs.
package loop
