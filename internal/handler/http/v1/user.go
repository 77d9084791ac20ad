package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/alerto360/internal/models"
)

// @Summary Register a citizen account
// @Tags Auth
// @Accept json
// @Produce json
// @Param account body RegisterRequest true "Account data"
// @Success 201 {object} UserResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 409 {object} map[string]string "Email already registered"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/register [post]
func (h *Handler) register(c *gin.Context) {
	var input RegisterRequest
	log := h.logger.WithField("method", "register")
	if !h.bindJSON(c, log, &input) {
		return
	}

	user, err := h.userService.Register(c.Request.Context(), input.Name, input.Email, input.Password)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToUserResponse(user))
}

// @Summary Log in
// @Description Checks the password and returns a bearer token.
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *Handler) login(c *gin.Context) {
	var input LoginRequest
	log := h.logger.WithField("method", "login")
	if !h.bindJSON(c, log, &input) {
		return
	}

	token, user, err := h.userService.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, User: ModelToUserResponse(user)})
}

// @Summary Get current account
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "User not found"
// @Router /users/me [get]
func (h *Handler) getProfile(c *gin.Context) {
	log := h.logger.WithField("method", "getProfile")

	user, err := h.userService.GetProfile(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToUserResponse(user))
}

// @Summary Update current account
// @Description Name, email, password and contact details can be changed. Role and responder type cannot.
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body UpdateProfileRequest true "Fields to change"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 409 {object} map[string]string "Email already registered"
// @Router /users/me [patch]
func (h *Handler) updateProfile(c *gin.Context) {
	var input UpdateProfileRequest
	log := h.logger.WithField("method", "updateProfile")
	if !h.bindJSON(c, log, &input) {
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), principalFrom(c), models.ProfileUpdate{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,

		PhoneNumber:                  input.PhoneNumber,
		Address:                      input.Address,
		EmergencyContactName:         input.EmergencyContactName,
		EmergencyContactPhone:        input.EmergencyContactPhone,
		EmergencyContactRelationship: input.EmergencyContactRelationship,
	})
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToUserResponse(user))
}

// @Summary Create a responder account
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param responder body CreateResponderRequest true "Responder account"
// @Success 201 {object} UserResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 409 {object} map[string]string "Email already registered"
// @Router /admin/responders [post]
func (h *Handler) createResponder(c *gin.Context) {
	var input CreateResponderRequest
	log := h.logger.WithField("method", "createResponder")
	if !h.bindJSON(c, log, &input) {
		return
	}

	rt, err := models.ParseResponderType(input.ResponderType)
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	user, err := h.userService.CreateResponder(c.Request.Context(), principalFrom(c), input.Name, input.Email, input.Password, rt)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToUserResponse(user))
}

// @Summary List responder accounts
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} UserResponse
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /admin/responders [get]
func (h *Handler) listResponders(c *gin.Context) {
	log := h.logger.WithField("method", "listResponders")

	users, err := h.userService.ListResponders(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToUserResponses(users))
}

// @Summary Update a responder account
// @Description Absent fields are left unchanged.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Responder ID"
// @Param responder body UpdateResponderRequest true "Fields to change"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Responder not found"
// @Failure 409 {object} map[string]string "Email already registered"
// @Router /admin/responders/{id} [patch]
func (h *Handler) updateResponder(c *gin.Context) {
	log := h.logger.WithField("method", "updateResponder")
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid responder id"})
		return
	}

	var input UpdateResponderRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	upd := models.ResponderUpdate{Name: input.Name, Email: input.Email, Password: input.Password}
	if input.ResponderType != nil {
		rt, err := models.ParseResponderType(*input.ResponderType)
		if err != nil {
			h.respondError(c, log, err)
			return
		}
		upd.ResponderType = &rt
	}

	user, err := h.userService.UpdateResponder(c.Request.Context(), principalFrom(c), id, upd)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToUserResponse(user))
}

// @Summary Delete a responder account
// @Tags Admin
// @Security BearerAuth
// @Param id path int true "Responder ID"
// @Success 204
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Responder not found"
// @Failure 409 {object} map[string]string "Responder has accepted incidents"
// @Router /admin/responders/{id} [delete]
func (h *Handler) deleteResponder(c *gin.Context) {
	log := h.logger.WithField("method", "deleteResponder")
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid responder id"})
		return
	}

	if err := h.userService.DeleteResponder(c.Request.Context(), principalFrom(c), id); err != nil {
		h.respondError(c, log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
