package echoapi

import (
	"net/http"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/academiapro/backend/core/iam"
)

type iamApi struct {
	svc        iam.ServiceInterface
	validate   *validator.Validate
	translator ut.Translator
}

func registerIAMAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := iamApi{
		svc:        deps.AccountSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	// the whole surface is super-admin only
	pg := g.Group("/permissions", jwt, superAdminMiddleware())
	pg.GET("", api.queryPermissions)

	ag := g.Group("/delegated-accounts", jwt, superAdminMiddleware())
	ag.POST("", api.create)
	ag.GET("", api.query)

	dg := ag.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PATCH("", api.update)
	dg.POST("/revoke", api.revoke)
}

// Handlers

func (api *iamApi) queryPermissions(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, iam.SearchPermissions(ctx.QueryParam("search")))
}

func (api *iamApi) create(ctx echo.Context) error {
	var data iam.NewDelegatedAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDelegatedAccount")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	acct, err := api.svc.Create(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating delegated account")
	}

	return ctx.JSON(http.StatusCreated, newAccountResponse(acct))
}

func (api *iamApi) query(ctx echo.Context) error {
	filter := new(iam.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []accountResponse{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	accts, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying delegated accounts")
	}
	return ctx.JSON(http.StatusOK, newAccountResponses(accts))
}

func (api *iamApi) retrieve(ctx echo.Context) error {
	acct, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == iam.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding delegated account by ID")
	}
	return ctx.JSON(http.StatusOK, newAccountResponse(acct))
}

func (api *iamApi) update(ctx echo.Context) error {
	acct, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == iam.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding delegated account by ID")
	}

	var data iam.UpdateDelegatedAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDelegatedAccount")
	}
	if err := data.Validate(acct, api.validate); err != nil {
		return err
	}

	acct, err = api.svc.Update(ctx.Request().Context(), acct.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating delegated account")
	}
	return ctx.JSON(http.StatusOK, newAccountResponse(acct))
}

func (api *iamApi) revoke(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	acct, err := api.svc.Revoke(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		if errors.Cause(err) == iam.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "revoking delegated account")
	}
	return ctx.JSON(http.StatusOK, newAccountResponse(acct))
}

// accountResponse decorates a DelegatedAccount with its effective status at
// response time.
type accountResponse struct {
	iam.DelegatedAccount
	EffectiveStatus string `json:"effective_status"`
}

func newAccountResponse(acct iam.DelegatedAccount) accountResponse {
	return accountResponse{acct, acct.EffectiveStatus(time.Now().UTC())}
}

func newAccountResponses(accts []iam.DelegatedAccount) []accountResponse {
	now := time.Now().UTC()
	resps := make([]accountResponse, 0, len(accts))
	for _, acct := range accts {
		resps = append(resps, accountResponse{acct, acct.EffectiveStatus(now)})
	}
	return resps
}
