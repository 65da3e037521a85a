package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/calloway-health/consultline/internal/api/handlers"
	"github.com/calloway-health/consultline/internal/api/middleware"
)

type Deps struct {
	Call     *handlers.CallHandler
	Twilio   *handlers.TwilioHandler
	Reminder *handlers.ReminderHandler
	Logger   *logrus.Logger
}

func Register(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestLogger(d.Logger))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Twilio signs webhooks itself; no bearer token on this route.
	r.POST("/twilio/calls", d.Twilio.IncomingCall)

	authed := r.Group("/", middleware.JWTAuth())
	{
		authed.POST("/calls/start_call", d.Call.StartCall)
		authed.GET("/calls/recent_call", d.Call.RecentCall)
		authed.GET("/calls/call_responses", d.Call.CallResponses)
		authed.GET("/reminders/send_reminders", d.Reminder.SendReminders)
	}
}
