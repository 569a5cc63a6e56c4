package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a forest-unique identifier built from the creation time
// plus a random discriminator. Callers must treat ids as opaque; nothing
// beyond creation order is encoded.
func NewID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), shortDiscriminator())
}

func shortDiscriminator() string {
	id := uuid.NewString()
	return strings.SplitN(id, "-", 2)[0]
}
