package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"shop-svc/payment"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	// Report validation errors by form field name rather than Go field name.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(payment.FieldName)
	}
}

const flashCookie = "flash"

const (
	levelSuccess = "success"
	levelInfo    = "info"
	levelWarning = "warning"
	levelError   = "error"
)

// Flash is a one-shot message shown on the next page the visitor loads.
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func readFlashes(c *gin.Context) []Flash {
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(data, &flashes); err != nil {
		return nil
	}
	return flashes
}

func writeFlashes(c *gin.Context, flashes []Flash) {
	c.SetSameSite(http.SameSiteLaxMode)
	if len(flashes) == 0 {
		c.SetCookie(flashCookie, "", -1, "/", "", false, true)
		return
	}
	data, _ := json.Marshal(flashes)
	c.SetCookie(flashCookie, base64.RawURLEncoding.EncodeToString(data), 0, "/", "", false, true)
}

// redirect queues a flash and sends the visitor to location with a 303.
// The body repeats the message for API clients that do not follow redirects.
func redirect(c *gin.Context, location, level, message string) {
	writeFlashes(c, append(readFlashes(c), Flash{Level: level, Message: message}))
	c.Header("Location", location)
	c.JSON(http.StatusSeeOther, gin.H{
		"level":    level,
		"message":  message,
		"redirect": location,
	})
}

// render writes a page, delivering and clearing pending flashes plus any
// raised while handling this request.
func render(c *gin.Context, status int, page gin.H, extra ...Flash) {
	messages := append(readFlashes(c), extra...)
	if len(messages) > 0 {
		writeFlashes(c, nil)
	}
	if messages == nil {
		messages = []Flash{}
	}
	page["messages"] = messages
	c.JSON(status, page)
}

// formErrors renders a rejected form as field -> message.
func formErrors(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"errors": payment.FieldErrors(err)})
}
