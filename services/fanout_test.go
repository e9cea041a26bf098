package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"social-backend/models"
)

func TestPlanFanout(t *testing.T) {
	sender := uint(1)
	snap := PresenceSnapshot{
		2: {Online: true, Viewing: true},
		3: {Online: true},
	}

	plans := PlanFanout(&sender, []uint{1, 2, 3, 4, 3}, snap)

	assert.Equal(t, []RecipientPlan{
		{UserID: 2, Online: true, ActiveRead: true},
		{UserID: 3, Online: true},
		{UserID: 4},
	}, plans)
	assert.Equal(t, models.StatusDelivered, plans[0].InitialStatus())
	assert.Equal(t, models.StatusDelivered, plans[1].InitialStatus())
	assert.Equal(t, models.StatusSent, plans[2].InitialStatus())
}

func TestPlanFanoutSystemMessage(t *testing.T) {
	plans := PlanFanout(nil, []uint{5, 6}, PresenceSnapshot{})
	assert.Len(t, plans, 2)
}
