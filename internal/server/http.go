package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/juhwano/backend-challenge-chat-server/internal/apperr"
	"github.com/juhwano/backend-challenge-chat-server/internal/hub"
	"github.com/juhwano/backend-challenge-chat-server/internal/membership"
	"github.com/juhwano/backend-challenge-chat-server/internal/models"
	"github.com/juhwano/backend-challenge-chat-server/internal/router"
)

// HTTPStore is the document-store slice the HTTP surface reads.
type HTTPStore interface {
	UpsertLogin(ctx context.Context, userName string) (*models.User, error)
	SetActive(ctx context.Context, userName string, active bool) error
	ActiveUserNames(ctx context.Context) ([]string, error)
	SearchUsers(ctx context.Context, query string) ([]models.ChatUser, error)
	ChatByNumber(ctx context.Context, number int64) (*models.Chat, error)
	ChatsByUser(ctx context.Context, userName string, personal bool, page, limit int64) ([]models.Chat, int64, error)
	GroupChats(ctx context.Context, page, limit int64) ([]models.Chat, int64, error)
	MessagesByChat(ctx context.Context, chatID string) ([]models.Message, error)
}

type Handler struct {
	store   HTTPStore
	members *membership.Manager
	sender  MessageSender
	hub     *hub.Hub
	log     *zap.SugaredLogger
}

func NewHandler(store HTTPStore, members *membership.Manager, sender MessageSender, h *hub.Hub, log *zap.SugaredLogger) *Handler {
	return &Handler{store: store, members: members, sender: sender, hub: h, log: log}
}

func (h *Handler) Register(app *fiber.App) {
	app.Post("/login", h.login)
	app.Post("/logout", h.logout)
	app.Get("/users", h.users)
	app.Get("/users/search", h.searchUsers)
	app.Get("/chats", h.groupChats)
	app.Post("/chats", h.createChat)
	app.Get("/chats/one-to-one/:userName", h.personalChats)
	app.Get("/chats/group/:userName", h.groupChatsByUser)
	app.Get("/chats/:number", h.chatByNumber)
	app.Get("/messages/:chatId", h.messages)
	app.Post("/message", h.sendMessage)
}

func (h *Handler) login(c *fiber.Ctx) error {
	var body struct {
		UserName string `json:"userName"`
	}
	if err := c.BodyParser(&body); err != nil || body.UserName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "userName is required")
	}
	user, err := h.store.UpsertLogin(c.Context(), body.UserName)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

func (h *Handler) logout(c *fiber.Ctx) error {
	var body struct {
		UserName string `json:"userName"`
	}
	if err := c.BodyParser(&body); err != nil || body.UserName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "userName is required")
	}
	if err := h.store.SetActive(c.Context(), body.UserName, false); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logout successful"})
}

func (h *Handler) users(c *fiber.Ctx) error {
	names, err := h.store.ActiveUserNames(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(names)
}

func (h *Handler) searchUsers(c *fiber.Ctx) error {
	users, err := h.store.SearchUsers(c.Context(), c.Query("query"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(users)
}

func (h *Handler) groupChats(c *fiber.Ctx) error {
	page := int64(c.QueryInt("page", 1))
	limit := int64(c.QueryInt("limit", 6))
	chats, total, err := h.store.GroupChats(c.Context(), page, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"chats":       chats,
		"totalPages":  (total + limit - 1) / limit,
		"currentPage": page,
	})
}

func (h *Handler) personalChats(c *fiber.Ctx) error {
	page := int64(c.QueryInt("page", 1))
	limit := int64(c.QueryInt("limit", 4))
	chats, total, err := h.store.ChatsByUser(c.Context(), c.Params("userName"), true, page, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"chats":       chats,
		"totalPages":  (total + limit - 1) / limit,
		"currentPage": page,
	})
}

func (h *Handler) groupChatsByUser(c *fiber.Ctx) error {
	chats, _, err := h.store.ChatsByUser(c.Context(), c.Params("userName"), false, 0, 0)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(chats)
}

func (h *Handler) chatByNumber(c *fiber.Ctx) error {
	number, err := c.ParamsInt("number")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat number")
	}
	chat, err := h.store.ChatByNumber(c.Context(), int64(number))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(chat)
}

func (h *Handler) createChat(c *fiber.Ctx) error {
	var body struct {
		ChatName   string `json:"chatName"`
		IsPersonal bool   `json:"isPersonal"`
		Owner      string `json:"owner"`
		User       string `json:"user"`
	}
	if err := c.BodyParser(&body); err != nil || body.Owner == "" {
		return fiber.NewError(fiber.StatusBadRequest, "owner is required")
	}

	if body.IsPersonal {
		if body.User == "" {
			return fiber.NewError(fiber.StatusBadRequest, "user is required for a personal chat")
		}
		chat, err := h.members.FindOrCreatePersonal(c.Context(), body.Owner, body.User)
		if err != nil {
			return h.fail(c, err)
		}
		// tell the target user a fresh 1:1 chat exists, if connected here
		h.hub.SendToUser(body.User, "new1to1chat", chat)
		return c.Status(fiber.StatusCreated).JSON(chat)
	}

	chat, err := h.members.CreateGroup(c.Context(), body.ChatName, body.Owner)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(chat)
}

func (h *Handler) messages(c *fiber.Ctx) error {
	msgs, err := h.store.MessagesByChat(c.Context(), c.Params("chatId"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(msgs)
}

func (h *Handler) sendMessage(c *fiber.Ctx) error {
	var body struct {
		From     string `json:"from"`
		To       string `json:"to"`
		Content  string `json:"content"`
		ChatType string `json:"chatType"`
		Number   int64  `json:"number"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid message body")
	}
	msg, err := h.sender.Send(c.Context(), router.SendRequest{
		From:       body.From,
		To:         body.To,
		ChatNumber: body.Number,
		Content:    body.Content,
		ChatKind:   body.ChatType,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError || status == fiber.StatusServiceUnavailable {
		h.log.Errorw("request failed", "path", c.Path(), "err", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": userMessage(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidContent),
		errors.Is(err, apperr.ErrCapacityExceeded):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrChatNotFound),
		errors.Is(err, apperr.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
