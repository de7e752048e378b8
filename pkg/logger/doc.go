// Package logger builds the structured slog.Logger shared by the usage kit.
//
// New returns a *slog.Logger configured through Option functions: output format
// (JSON for production, text for development), minimum level, static attributes
// and ContextExtractor callbacks that copy values from context.Context into every
// record. The owner identity stored with WithOwner is extracted automatically, so
// tracker, synchronizer and coordinator logs are always attributable to an account.
//
// Attribute helpers (OwnerID, Resource, Action, Tier, Key, Attempt, Error) keep
// key names consistent across packages:
//
//	log := logger.New(logger.WithEnvironment(cfg.Env, "usagekit"))
//	ctx = logger.WithOwner(ctx, ownerID)
//	log.WarnContext(ctx, "usage notification failed",
//	    logger.Resource(string(res)),
//	    logger.Error(err),
//	)
//
// Error and Errors return an empty attribute for nil errors, so they can be
// passed without a nil check.
package logger
