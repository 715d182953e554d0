package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-app/internal/models"
	"marketplace-app/internal/services"
)

type PlanHandler struct {
	service services.PlanService
}

func NewPlanHandler(service services.PlanService) *PlanHandler {
	return &PlanHandler{service: service}
}

type planRequest struct {
	PlanName models.PlanName `json:"plan_name" binding:"required"`
	PlanType models.PlanType `json:"plan_type" binding:"required"`
}

func (h *PlanHandler) GetMyPlan(c *gin.Context) {
	userID, _ := actor(c)
	plan, err := h.service.GetPlan(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// ActivatePlan activates the free tier directly; paid tiers normally arrive
// through the payment webhook after checkout.
func (h *PlanHandler) ActivatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	userID, _ := actor(c)
	if req.PlanName != models.PlanFree {
		session, err := h.service.CreatePlanCheckoutSession(c.Request.Context(), userID, req.PlanName, req.PlanType)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
		return
	}

	plan, err := h.service.ActivatePlan(c.Request.Context(), userID, req.PlanName, req.PlanType, services.PaymentRef{})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (h *PlanHandler) UpgradePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	userID, _ := actor(c)
	plan, priceDelta, err := h.service.UpgradePlan(c.Request.Context(), userID, req.PlanName, req.PlanType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan, "price_delta": priceDelta})
}

func (h *PlanHandler) RenewPlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	userID, _ := actor(c)
	plan, err := h.service.RenewPlan(c.Request.Context(), userID, req.PlanName, req.PlanType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *PlanHandler) CancelPlan(c *gin.Context) {
	userID, _ := actor(c)
	if err := h.service.CancelPlan(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Plan cancelled"})
}

func (h *PlanHandler) CheckExpiration(c *gin.Context) {
	providerID := c.Param("providerId")
	plan, err := h.service.CheckPlanExpiration(c.Request.Context(), providerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *PlanHandler) SweepExpired(c *gin.Context) {
	h.service.SweepExpiredPlans(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Expiration sweep triggered"})
}
