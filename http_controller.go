package identity

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/google/uuid"
)

// RegisterSessionRoutes mounts the session and identity lifecycle routes.
func RegisterSessionRoutes[T any](app router.Router[T], opts ...SessionControllerOption) {

	controller := NewSessionController(opts...)

	app.
		Get(controller.Routes.SignIn, controller.SignInShow).
		SetName("sign-in.get")

	app.
		Post(controller.Routes.SignIn, controller.SignInPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.SignUp, controller.SignUpShow).
		SetName("sign-up.get")
	app.Post(controller.Routes.SignUp, controller.SignUpPost).
		SetName("sign-up.post")

	app.Get(controller.Routes.SignOut, controller.SignOutGet).SetName("sign-out.get")

	app.Get(controller.Routes.Sessions, controller.SessionsIndex).
		SetName("sessions.index")
	app.Post(fmt.Sprintf("%s/:id/terminate", controller.Routes.Sessions), controller.SessionTerminate).
		SetName("sessions.terminate")
	app.Post(fmt.Sprintf("%s/terminate-others", controller.Routes.Sessions), controller.SessionsTerminateOthers).
		SetName("sessions.terminate-others")

	app.Get(controller.Routes.Activity, controller.ActivityIndex).
		SetName("activity.index")
}

type SessionControllerRoutes struct {
	SignIn   string
	SignUp   string
	SignOut  string
	Sessions string
	Activity string
}

type SessionControllerViews struct {
	SignIn   string
	SignUp   string
	Sessions string
	Activity string
}

type SessionController struct {
	Debug        bool
	Logger       Logger
	Auth         *Orchestrator
	Repo         RepositoryManager
	Routes       *SessionControllerRoutes
	Views        *SessionControllerViews
	ErrorHandler router.ErrorHandler
}

type SessionControllerOption func(*SessionController) *SessionController

func NewSessionController(opts ...SessionControllerOption) *SessionController {
	c := &SessionController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &SessionControllerRoutes{
			SignIn:   "/login",
			SignUp:   "/register",
			SignOut:  "/logout",
			Sessions: "/account/sessions",
			Activity: "/account/activity",
		},
		Views: &SessionControllerViews{
			SignIn:   "login",
			SignUp:   "register",
			Sessions: "sessions",
			Activity: "activity",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auth == nil {
		panic("Missing Orchestrator in session controller...")
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in session controller...")
	}

	return c
}

// WithControllerLogger sets the logger
func WithControllerLogger(logger Logger) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func (a *SessionController) SignInShow(ctx router.Context) error {
	return ctx.Render(a.Views.SignIn, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

func (a *SessionController) SignInPost(ctx router.Context) error {
	payload := new(SignInRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("sign in parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.SignIn, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	payload.Env = collectEnvironmentHints(ctx)

	if err := payload.Validate(); err != nil {
		errors := FormatValidationErrorToMap(err)
		a.Logger.Error("sign in validate payload: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.SignIn, router.ViewContext{
			"record":     payload,
			"validation": errors,
		})
	}

	if a.Debug {
		fmt.Println("======= IDENTITY SIGN IN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("===============================")
	}

	if _, err := a.Auth.SignIn(ctx.Context(), *payload); err != nil {
		// backend message rendered verbatim
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Authentication Error",
		}).Render(a.Views.SignIn, router.ViewContext{
			"errors": map[string]string{"authentication": err.Error()},
			"record": payload,
		})
	}

	return ctx.Redirect("/", router.StatusSeeOther)
}

func (a *SessionController) SignUpShow(ctx router.Context) error {
	return ctx.Render(a.Views.SignUp, router.ViewContext{
		"errors": map[string]string{},
		"record": SignUpRequest{},
	})
}

func (a *SessionController) SignUpPost(ctx router.Context) error {
	payload := new(SignUpRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("sign up parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.SignUp, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	payload.Env = collectEnvironmentHints(ctx)

	if err := payload.Validate(); err != nil {
		errors := FormatValidationErrorToMap(err)
		a.Logger.Error("sign up validate payload: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.SignUp, router.ViewContext{
			"record":     payload,
			"validation": errors,
		})
	}

	if _, err := a.Auth.SignUp(ctx.Context(), *payload); err != nil {
		a.Logger.Error("sign up error: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error creating account",
		}).Render(a.Views.SignUp, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Welcome! Your account is ready",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *SessionController) SignOutGet(ctx router.Context) error {
	if err := a.Auth.SignOut(ctx.Context()); err != nil {
		a.Logger.Error("sign out error: ", "error", err)
	}
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *SessionController) SessionsIndex(ctx router.Context) error {
	views, err := a.Auth.ListSessions(ctx.Context())
	if err != nil {
		if IsNotAuthenticated(err) {
			return ctx.Redirect(a.Routes.SignIn, router.StatusSeeOther)
		}
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Sessions, router.ViewContext{
		"errors":   nil,
		"sessions": views,
	})
}

func (a *SessionController) SessionTerminate(ctx router.Context) error {
	snapshot := a.Auth.Current()
	if !snapshot.IsAuthenticated() {
		return ctx.Redirect(a.Routes.SignIn, router.StatusSeeOther)
	}

	sessionID, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  "invalid session id",
			"system_message": "Error terminating session",
		}).Redirect(a.Routes.Sessions, fiber.StatusSeeOther)
	}

	var res *TerminateSessionResponse
	msg := TerminateSessionMessage{
		SessionID: sessionID,
		ProfileID: snapshot.Profile.ID,
		OnResponse: func(r *TerminateSessionResponse) {
			res = r
		},
	}
	if snapshot.Session != nil {
		msg.TokenHint = snapshot.Session.SessionToken
	}

	terminate := NewTerminateSessionHandler(a.Repo)
	if err := terminate.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("session terminate error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error terminating session",
		}).Redirect(a.Routes.Sessions, fiber.StatusSeeOther)
	}

	if a.Debug {
		fmt.Println("================")
		fmt.Println(print.MaybePrettyJSON(res))
		fmt.Println("================")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Session terminated",
	}).Redirect(a.Routes.Sessions, fiber.StatusSeeOther)
}

func (a *SessionController) SessionsTerminateOthers(ctx router.Context) error {
	count, err := a.Auth.TerminateOtherSessions(ctx.Context())
	if err != nil {
		if IsNotAuthenticated(err) {
			return ctx.Redirect(a.Routes.SignIn, router.StatusSeeOther)
		}
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error terminating sessions",
		}).Redirect(a.Routes.Sessions, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": fmt.Sprintf("Terminated %d other sessions", count),
	}).Redirect(a.Routes.Sessions, fiber.StatusSeeOther)
}

func (a *SessionController) ActivityIndex(ctx router.Context) error {
	records, err := a.Auth.RecentActivity(ctx.Context(), DefaultActivityLimit)
	if err != nil {
		if IsNotAuthenticated(err) {
			return ctx.Redirect(a.Routes.SignIn, router.StatusSeeOther)
		}
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Activity, router.ViewContext{
		"errors":   nil,
		"activity": records,
	})
}

// RequireResolvedAdmin gates a route on a fully resolved admin decision.
// Unknown reads as not-admin, so privileged pages never flicker into view
// while sources are still being consulted.
func RequireResolvedAdmin(auth *Orchestrator, signInRoute string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			snapshot := auth.Current()
			if !snapshot.IsAuthenticated() {
				return ctx.Redirect(signInRoute, router.StatusSeeOther)
			}

			if !snapshot.CanRenderPrivileged() {
				return ctx.Status(fiber.StatusForbidden).SendString("Forbidden")
			}

			ctx.Locals("identity", snapshot)
			return next(ctx)
		}
	}
}

// RequireAdminRole layers a sub-role floor on top of RequireResolvedAdmin:
// the principal must be a resolved admin AND carry at least minRole.
func RequireAdminRole(auth *Orchestrator, minRole AdminRole, signInRoute string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			snapshot := auth.Current()
			if !snapshot.IsAuthenticated() {
				return ctx.Redirect(signInRoute, router.StatusSeeOther)
			}

			if !snapshot.CanRenderPrivileged() || !AdminRoleAtLeast(snapshot.Admin.Role, minRole) {
				return ctx.Status(fiber.StatusForbidden).SendString("Forbidden")
			}

			ctx.Locals("identity", snapshot)
			return next(ctx)
		}
	}
}

// collectEnvironmentHints derives client environment hints from request
// headers. Values are descriptive only.
func collectEnvironmentHints(ctx router.Context) EnvironmentHints {
	ip := ctx.Header("X-Forwarded-For")
	if i := strings.Index(ip, ","); i >= 0 {
		ip = strings.TrimSpace(ip[:i])
	}
	if ip == "" {
		ip = ctx.Header("X-Real-Ip")
	}

	return EnvironmentHints{
		UserAgent: ctx.Header("User-Agent"),
		Language:  ctx.Header("Accept-Language"),
		IP:        ip,
	}
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
