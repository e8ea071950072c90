package push

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dukerupert/aideals/internal/model"
)

// OrderPaidAlert tells admins a paid order is waiting to be fulfilled.
func OrderPaidAlert(o model.Order, now time.Time) Payload {
	return Payload{
		Title: "New paid order",
		Body: fmt.Sprintf("%s for %s. Activation due %s.",
			orderLabel(o), o.BuyerEmail, humanize.RelTime(o.ActivationDeadline, now, "ago", "from now")),
		URL: "/admin/orders/" + o.ID,
		Tag: model.AlertOrderPaid + ":" + o.ID,
	}
}

// DeadlineMissedAlert tells admins an order passed its activation deadline.
func DeadlineMissedAlert(o model.Order, now time.Time) Payload {
	return Payload{
		Title: "Activation deadline missed",
		Body: fmt.Sprintf("%s for %s was due %s.",
			orderLabel(o), o.BuyerEmail, humanize.RelTime(o.ActivationDeadline, now, "ago", "from now")),
		URL: "/admin/orders/" + o.ID,
		Tag: model.AlertDeadlineMissed + ":" + o.ID,
	}
}

func orderLabel(o model.Order) string {
	if o.PlanID != nil {
		return model.PlanKey(o.ToolID, *o.PlanID)
	}
	return o.ToolID
}
