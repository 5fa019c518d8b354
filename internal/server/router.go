package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/schema"
)

// maxBodyBytes bounds request bodies. Day logs carry encoded photos.
const maxBodyBytes = 32 << 20

func (s *Server) newRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "HEAD", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/v1")
	v1.Use(s.auth())
	{
		v1.GET("/sessions", s.handleList)
		v1.POST("/sessions", s.handleCreate)
		v1.GET("/sessions/:id", s.handleGet)
		v1.HEAD("/sessions/:id", s.handleExists)
		v1.PATCH("/sessions/:id", s.handleSetMerged)
		v1.DELETE("/sessions/:id", s.handleDelete)
		v1.GET("/sessions/:id/subscribe", s.handleSubscribe)
	}
	return r
}

// auth enforces the bearer token when one is configured.
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(s.config.Token)
		if token == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if h := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(strings.ToLower(h), "bearer ") {
			got = strings.TrimSpace(h[7:])
		}
		if got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorData{
				Kind:    gateway.KindPermissionDenied,
				Message: "unauthorized",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Printf("%s %s %d %s", c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// writeError maps a gateway error to a status code and ErrorData body.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := gateway.Classify(err)
	switch {
	case errors.Is(err, gateway.ErrAlreadyExists):
		status = http.StatusConflict
	case kind == gateway.KindNotFound:
		status = http.StatusNotFound
	case kind == gateway.KindPermissionDenied:
		status = http.StatusForbidden
	}
	if c.Request.Method == http.MethodHead {
		c.Status(status)
		return
	}
	c.JSON(status, ErrorData{Kind: kind, Message: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorData{Kind: gateway.KindUnknown, Message: msg})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleList(c *gin.Context) {
	metas, err := s.gw.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, metas)
}

func (s *Server) handleCreate(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		badRequest(c, "failed to read body")
		return
	}
	sess, err := gateway.DecodeSessionJSON(data)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := sess.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.gw.Create(c.Request.Context(), sess); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleGet(c *gin.Context) {
	sess, err := s.gw.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleExists(c *gin.Context) {
	ok, err := s.gw.Exists(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleSetMerged(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		badRequest(c, "failed to read body")
		return
	}
	doc, err := gateway.ParseDocument(data)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if id, ok := doc["id"].(string); ok && id != c.Param("id") {
		badRequest(c, "document id does not match path")
		return
	}
	if err := s.gw.SetMerged(c.Request.Context(), c.Param("id"), doc); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.gw.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// sessionMessage builds the snapshot message for sess.
func sessionMessage(sess *schema.Session) (Message, error) {
	return newMessage(MessageTypeSnapshot, sess)
}
