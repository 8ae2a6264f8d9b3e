// Package pagekit resolves page-level capabilities for the users of an administrative console.
//
// A console is divided into pages ("projects", "documents", "roles", ...). Users hold any
// number of roles, and each role may grant five independent capabilities on each page:
// view, add, edit, delete and print. A user's effective permissions on a page are the
// flag-wise OR of every grant held by any of their roles.
//
// # Core Concepts
//
// Page: a gated area of the console, identified by a unique code.
//
// Role: a named bundle of per-page grants. A user can hold many roles; permissions are UNION.
//
// Permissions: the five flags for one (user, page). Never stored, always computed.
//
// # Outcomes
//
// Resolution fails closed. Nobody signed in, an unknown page, a user without roles and a
// page without grants all yield NoPermissions with a nil error. A lookup that could not be
// completed (store error, timeout, cancellation) yields NoPermissions together with an
// error satisfying IsLookupFailure, so callers can tell "no access" from "access unknown".
//
// # Basic Usage
//
//	// 1. Create the service
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := pagekit.NewServiceFromDBKit(db, pagekit.WithLogger(logger))
//
//	// 2. Run migrations
//	pagekit.NewMigrationService(service).RunMigrations(ctx)
//
//	// 3. Resolve
//	perms, err := service.Resolve(ctx, userID, "projects")
//	if err != nil {
//	    // access unknown
//	}
//	if perms.CanEdit {
//	    // show edit controls
//	}
//
// # HTTP Integration
//
//	mw := pagekit.NewMiddleware(service, pagekit.WithAuthenticator(tokens))
//	router.Use(mw.Authenticate(), mw.InjectAuditContext())
//	router.With(mw.RequireCapability(pagekit.CapabilityDelete, pagekit.StaticPage("projects"))).
//	    Delete("/projects/{id}", deleteProjectHandler)
//
// # Administration
//
// Service also manages pages, roles, grants, role assignments and console profile roles.
// Every change requires an administrator actor in the context, is written together with
// an audit log entry in one transaction, and invalidates the affected cache entries.
package pagekit
