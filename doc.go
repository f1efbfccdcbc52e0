// Package features activates the optional subsystems of a messaging runtime and
// drives the startup tasks they register through a start/stop lifecycle bound
// to the runtime's messaging session.
//
// The flow is strictly one-way:
//
//	Registry -> Resolve -> ActivationPlan -> RunSetup -> TaskList -> Orchestrator
//
// A Registry collects feature descriptors and their explicit activation
// settings. Resolve freezes the registry and computes the ActivationPlan: the
// features that are enabled (explicitly or by default) and whose prerequisites
// and conditions are all satisfied, in dependency order. RunSetup calls each
// active feature's setup callback in plan order; setup callbacks register
// startup tasks through the ConfigurationContext. The Orchestrator then starts
// those tasks in registration order and later stops them in the same order,
// disposing every task that registered a disposal function.
//
// Basic usage:
//
//	reg := features.NewRegistry(features.WithLogger(logger))
//	_ = reg.Register(features.Descriptor{
//		Name:             "outbox",
//		EnabledByDefault: true,
//		Setup: func(cc *features.ConfigurationContext) error {
//			cleaner := newOutboxCleaner(cc.Settings())
//			cc.RegisterStartupTask(cleaner, features.WithDispose(cleaner.Close))
//			return nil
//		},
//	})
//	plan, err := reg.Resolve()
//	tasks, err := features.RunSetup(ctx, plan, features.NewConfigurationContext(settings, services, logger))
//	orch := features.NewOrchestrator(tasks)
//	err = orch.Start(ctx, session)
//	...
//	err = orch.Stop(ctx, session)
//
// Activator bundles the same steps behind a single value for hosts that do not
// need to observe the intermediate results.
package features
