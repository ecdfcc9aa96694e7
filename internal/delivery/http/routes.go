package http

import (
	"net/http"

	wsDelivery "github.com/justinMonserrat/plop/internal/delivery/websocket"

	"github.com/go-chi/chi/v5"
)

func MapHttpRoutes(r *chi.Mux, httpHandler *HttpHandler, websocketHandler *wsDelivery.WebsocketHandler, authHandler *AuthHandler, authMiddleware *AuthMiddleware) {
	r.Handle("/ws", http.HandlerFunc(websocketHandler.HandleWebSocket))

	// Media is served by key; the urls are unguessable blob names.
	r.Get("/media/{key}", http.HandlerFunc(httpHandler.ServeMedia))

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", http.HandlerFunc(authHandler.Register))
		r.Post("/login", http.HandlerFunc(authHandler.Login))
		r.Post("/refresh", http.HandlerFunc(authHandler.RefreshToken))
		r.Post("/logout", http.HandlerFunc(authHandler.Logout))

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Post("/logout-all", http.HandlerFunc(authHandler.LogoutAllDevices))
		})
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", http.HandlerFunc(httpHandler.ListConversations))
			r.Post("/direct", http.HandlerFunc(httpHandler.CreateDirect))
			r.Post("/group", http.HandlerFunc(httpHandler.CreateGroup))
			r.Get("/{conversationId}/members", http.HandlerFunc(httpHandler.ListMembers))
			r.Post("/{conversationId}/members", http.HandlerFunc(httpHandler.AddMember))
			r.Delete("/{conversationId}/members", http.HandlerFunc(httpHandler.LeaveConversation))
			r.Get("/{conversationId}/messages", http.HandlerFunc(httpHandler.GetMessages))
			r.Post("/{conversationId}/messages", http.HandlerFunc(httpHandler.SendMessage))
			r.Post("/{conversationId}/read", http.HandlerFunc(httpHandler.MarkConversationRead))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", http.HandlerFunc(httpHandler.ListNotifications))
			r.Post("/read", http.HandlerFunc(httpHandler.MarkNotificationsRead))
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}", http.HandlerFunc(httpHandler.GetProfile))
			r.Get("/{id}/following", http.HandlerFunc(httpHandler.ListFollowing))
			r.Post("/{id}/follow", http.HandlerFunc(httpHandler.Follow))
			r.Delete("/{id}/follow", http.HandlerFunc(httpHandler.Unfollow))
		})
	})
}
