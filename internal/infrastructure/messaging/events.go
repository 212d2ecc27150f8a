package messaging

import "github.com/hilthontt/reelsync/internal/domain"

const (
	ChangesExchange = "changes"
)

type ChangeEventData struct {
	Record domain.ChangeRecord `json:"record"`
}
