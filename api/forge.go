package api

import (
	"net/http"
	"strconv"

	"github.com/xraph/forge"

	"github.com/xraph/courier"
	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/subscription"
)

// ForgeAPI wires all Forge-style HTTP handlers together.
type ForgeAPI struct {
	courier *courier.Courier
	log     forge.Logger
}

// NewForgeAPI creates a ForgeAPI over a Courier.
func NewForgeAPI(c *courier.Courier, log forge.Logger) *ForgeAPI {
	return &ForgeAPI{courier: c, log: log}
}

// RegisterRoutes registers all courier admin API routes into the given Forge
// router with full OpenAPI metadata.
func (a *ForgeAPI) RegisterRoutes(router forge.Router) {
	a.registerSubscriptionRoutes(router)
	a.registerDeliveryRoutes(router)
	a.registerEventRoutes(router)
	a.registerStatsRoutes(router)
}

// ---------------------------------------------------------------------------
// Subscription routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerSubscriptionRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("subscriptions"))

	if err := g.POST("/subscriptions", a.createSubscription,
		forge.WithSummary("Create subscription"),
		forge.WithDescription("Registers a webhook target. The response carries the signing secret; it is not returned again."),
		forge.WithOperationID("createSubscription"),
		forge.WithRequestSchema(CreateSubscriptionForgeRequest{}),
		forge.WithCreatedResponse(subscriptionView{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register createSubscription route", forge.Error(err))
	}

	if err := g.GET("/subscriptions", a.listSubscriptions,
		forge.WithSummary("List subscriptions"),
		forge.WithDescription("Returns subscriptions oldest first."),
		forge.WithOperationID("listSubscriptions"),
		forge.WithRequestSchema(ListSubscriptionsForgeRequest{}),
		forge.WithListResponse(subscriptionView{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listSubscriptions route", forge.Error(err))
	}

	if err := g.GET("/subscriptions/:subscriptionId", a.getSubscription,
		forge.WithSummary("Get subscription"),
		forge.WithDescription("Returns a subscription without its secret."),
		forge.WithOperationID("getSubscription"),
		forge.WithResponseSchema(http.StatusOK, "Subscription details", subscriptionView{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getSubscription route", forge.Error(err))
	}

	if err := g.PATCH("/subscriptions/:subscriptionId", a.updateSubscription,
		forge.WithSummary("Update subscription"),
		forge.WithDescription("Applies a partial update. Omitted fields keep their values."),
		forge.WithOperationID("updateSubscription"),
		forge.WithRequestSchema(UpdateSubscriptionForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated subscription", subscriptionView{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register updateSubscription route", forge.Error(err))
	}

	if err := g.DELETE("/subscriptions/:subscriptionId", a.deleteSubscription,
		forge.WithSummary("Delete subscription"),
		forge.WithDescription("Removes a subscription. Its pending deliveries fail on their next attempt."),
		forge.WithOperationID("deleteSubscription"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register deleteSubscription route", forge.Error(err))
	}

	if err := g.POST("/subscriptions/:subscriptionId/rotate-secret", a.rotateSecret,
		forge.WithSummary("Rotate secret"),
		forge.WithDescription("Generates a new signing secret and returns it."),
		forge.WithOperationID("rotateSubscriptionSecret"),
		forge.WithResponseSchema(http.StatusOK, "New secret", SecretForgeResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register rotateSubscriptionSecret route", forge.Error(err))
	}
}

func (a *ForgeAPI) createSubscription(ctx forge.Context, req *CreateSubscriptionForgeRequest) (*subscriptionView, error) {
	sub, err := a.courier.Subscriptions().Create(ctx.Context(), req.input())
	if err != nil {
		return nil, mapError(err)
	}

	err = ctx.JSON(http.StatusCreated, createdView(sub))
	if err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) listSubscriptions(ctx forge.Context, req *ListSubscriptionsForgeRequest) ([]*subscriptionView, error) {
	opts := subscription.ListOpts{
		Offset: req.Offset,
		Limit:  pageSize(req.Limit),
	}
	if b, err := strconv.ParseBool(req.Active); err == nil {
		opts.Active = &b
	}

	subs, err := a.courier.Subscriptions().List(ctx.Context(), opts)
	if err != nil {
		return nil, mapError(err)
	}

	return viewsOf(subs), nil
}

func (a *ForgeAPI) getSubscription(ctx forge.Context, req *GetSubscriptionForgeRequest) (*subscriptionView, error) {
	subID, err := id.ParseSubscriptionID(req.SubscriptionID)
	if err != nil {
		return nil, forge.NotFound("subscription not found")
	}

	sub, getErr := a.courier.Subscriptions().Get(ctx.Context(), subID)
	if getErr != nil {
		return nil, mapError(getErr)
	}

	return viewOf(sub), nil
}

func (a *ForgeAPI) updateSubscription(ctx forge.Context, req *UpdateSubscriptionForgeRequest) (*subscriptionView, error) {
	subID, err := id.ParseSubscriptionID(req.SubscriptionID)
	if err != nil {
		return nil, forge.NotFound("subscription not found")
	}

	sub, updateErr := a.courier.Subscriptions().Update(ctx.Context(), subID, req.input())
	if updateErr != nil {
		return nil, mapError(updateErr)
	}

	return viewOf(sub), nil
}

func (a *ForgeAPI) deleteSubscription(ctx forge.Context, req *SubscriptionActionForgeRequest) (*subscriptionView, error) {
	subID, err := id.ParseSubscriptionID(req.SubscriptionID)
	if err != nil {
		return nil, forge.NotFound("subscription not found")
	}

	if delErr := a.courier.Subscriptions().Delete(ctx.Context(), subID); delErr != nil {
		return nil, mapError(delErr)
	}

	if err := ctx.NoContent(http.StatusNoContent); err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.NoContent.
	return nil, nil
}

func (a *ForgeAPI) rotateSecret(ctx forge.Context, req *SubscriptionActionForgeRequest) (*SecretForgeResponse, error) {
	subID, err := id.ParseSubscriptionID(req.SubscriptionID)
	if err != nil {
		return nil, forge.NotFound("subscription not found")
	}

	secret, rotateErr := a.courier.Subscriptions().RotateSecret(ctx.Context(), subID)
	if rotateErr != nil {
		return nil, mapError(rotateErr)
	}

	return &SecretForgeResponse{Secret: secret}, nil
}

// ---------------------------------------------------------------------------
// Delivery routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerDeliveryRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("deliveries"))

	if err := g.GET("/subscriptions/:subscriptionId/deliveries", a.listDeliveries,
		forge.WithSummary("List deliveries"),
		forge.WithDescription("Returns a page of a subscription's deliveries, newest first."),
		forge.WithOperationID("listDeliveries"),
		forge.WithRequestSchema(ListDeliveriesForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Delivery page", courier.DeliveryPage{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listDeliveries route", forge.Error(err))
	}

	if err := g.GET("/deliveries/:deliveryId", a.getDelivery,
		forge.WithSummary("Get delivery"),
		forge.WithDescription("Returns one delivery with its latest attempt outcome."),
		forge.WithOperationID("getDelivery"),
		forge.WithResponseSchema(http.StatusOK, "Delivery details", delivery.Delivery{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getDelivery route", forge.Error(err))
	}

	if err := g.POST("/deliveries/:deliveryId/redeliver", a.redeliver,
		forge.WithSummary("Redeliver"),
		forge.WithDescription("Enqueues a fresh pending delivery with the same payload bytes."),
		forge.WithOperationID("redeliver"),
		forge.WithResponseSchema(http.StatusAccepted, "New delivery", delivery.Delivery{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register redeliver route", forge.Error(err))
	}
}

func (a *ForgeAPI) listDeliveries(ctx forge.Context, req *ListDeliveriesForgeRequest) (*courier.DeliveryPage, error) {
	subID, err := id.ParseSubscriptionID(req.SubscriptionID)
	if err != nil {
		return nil, forge.NotFound("subscription not found")
	}

	opts := delivery.ListOpts{
		Offset: req.Offset,
		Limit:  pageSize(req.Limit),
	}
	if req.Status != "" {
		status := delivery.Status(req.Status)
		if !status.Valid() {
			return nil, forge.BadRequest("unknown status " + req.Status)
		}
		opts.Status = &status
	}

	page, listErr := a.courier.ListDeliveries(ctx.Context(), subID, opts)
	if listErr != nil {
		return nil, mapError(listErr)
	}

	return page, nil
}

func (a *ForgeAPI) getDelivery(ctx forge.Context, req *DeliveryActionForgeRequest) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(req.DeliveryID)
	if err != nil {
		return nil, forge.NotFound("delivery not found")
	}

	d, getErr := a.courier.Delivery(ctx.Context(), delID)
	if getErr != nil {
		return nil, mapError(getErr)
	}

	return d, nil
}

func (a *ForgeAPI) redeliver(ctx forge.Context, req *DeliveryActionForgeRequest) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(req.DeliveryID)
	if err != nil {
		return nil, forge.NotFound("delivery not found")
	}

	d, redeliverErr := a.courier.Redeliver(ctx.Context(), delID)
	if redeliverErr != nil {
		return nil, mapError(redeliverErr)
	}

	if err := ctx.JSON(http.StatusAccepted, d); err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

// ---------------------------------------------------------------------------
// Event routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerEventRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("events"))

	if err := g.POST("/events", a.trigger,
		forge.WithSummary("Trigger event"),
		forge.WithDescription("Fans an event out to every active subscription that lists its type."),
		forge.WithOperationID("triggerEvent"),
		forge.WithRequestSchema(TriggerForgeRequest{}),
		forge.WithResponseSchema(http.StatusAccepted, "Enqueued deliveries", TriggerForgeResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register triggerEvent route", forge.Error(err))
	}

	if err := g.GET("/event-types", a.listEventTypes,
		forge.WithSummary("List event types"),
		forge.WithDescription("Returns the catalog of known event types."),
		forge.WithOperationID("listEventTypes"),
		forge.WithListResponse(catalog.Definition{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listEventTypes route", forge.Error(err))
	}

	if err := g.GET("/event-types/:name", a.getEventType,
		forge.WithSummary("Get event type"),
		forge.WithDescription("Returns one catalog entry, including its payload schema."),
		forge.WithOperationID("getEventType"),
		forge.WithResponseSchema(http.StatusOK, "Event type", catalog.Definition{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getEventType route", forge.Error(err))
	}

	if err := g.POST("/test", a.testDeliver,
		forge.WithSummary("Test delivery"),
		forge.WithDescription("Sends one signed request to any URL. Nothing is stored and nothing is retried."),
		forge.WithOperationID("testDeliver"),
		forge.WithRequestSchema(TestDeliverForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Test result", delivery.TestResult{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register testDeliver route", forge.Error(err))
	}
}

func (a *ForgeAPI) trigger(ctx forge.Context, req *TriggerForgeRequest) (*TriggerForgeResponse, error) {
	n, err := a.courier.Trigger(ctx.Context(), req.EventType, rawPayload(req.Payload))
	if err != nil {
		return nil, mapError(err)
	}

	err = ctx.JSON(http.StatusAccepted, TriggerForgeResponse{EventType: req.EventType, Enqueued: n})
	if err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) listEventTypes(_ forge.Context, _ *ListEventTypesForgeRequest) ([]catalog.Definition, error) {
	return a.courier.Catalog().List(), nil
}

func (a *ForgeAPI) getEventType(_ forge.Context, req *GetEventTypeForgeRequest) (*catalog.Definition, error) {
	def, err := a.courier.Catalog().Lookup(req.Name)
	if err != nil {
		return nil, mapError(err)
	}

	return &def, nil
}

func (a *ForgeAPI) testDeliver(ctx forge.Context, req *TestDeliverForgeRequest) (*delivery.TestResult, error) {
	return a.courier.TestDeliver(ctx.Context(), delivery.TestRequest{
		URL:       req.URL,
		Secret:    req.Secret,
		EventType: req.EventType,
		Payload:   rawPayload(req.Payload),
	}), nil
}

// ---------------------------------------------------------------------------
// Stats routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerStatsRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("stats"))

	if err := g.GET("/stats", a.getStats,
		forge.WithSummary("Delivery statistics"),
		forge.WithDescription("Returns the subscription count and delivery counts by status."),
		forge.WithOperationID("getStats"),
		forge.WithResponseSchema(http.StatusOK, "Delivery statistics", courier.Stats{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getStats route", forge.Error(err))
	}
}

func (a *ForgeAPI) getStats(ctx forge.Context, _ *StatsForgeRequest) (*courier.Stats, error) {
	stats, err := a.courier.Stats(ctx.Context())
	if err != nil {
		return nil, mapError(err)
	}

	return stats, nil
}
