package handlers

import (
	"net/http"
	"strconv"

	"voltfarm/internal/service"

	"github.com/gin-gonic/gin"
)

// ListTasks returns active tasks; completion flags need a token.
func (h *Handler) ListTasks(c *gin.Context) {
	userID, _ := getUserID(c)

	tasks, err := h.Miner.ListTasks(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *Handler) CompleteTask(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	reward, view, err := h.Miner.CompleteTask(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reward": reward, "miner": view})
}

// Admin

func (h *Handler) AdminListTasks(c *gin.Context) {
	tasks, err := h.Miner.AllTasks(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *Handler) AdminCreateTask(c *gin.Context) {
	var in service.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	t, err := h.Miner.CreateTask(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) AdminUpdateTask(c *gin.Context) {
	var in service.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	t, err := h.Miner.UpdateTask(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) AdminDeleteTask(c *gin.Context) {
	if err := h.Miner.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
