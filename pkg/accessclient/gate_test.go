package accessclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dataroom-backend/pkg/models"
)

func userSession() Session {
	return Session{UserID: "u1", Email: "user@example.com", Role: models.RoleUser, Token: "tok"}
}

func adminSession() Session {
	return Session{UserID: "a1", Email: "admin@example.com", Role: models.RoleAdmin, Token: "tok"}
}

func TestGateFailsClosedForUnknownItems(t *testing.T) {
	gate := NewGate(userSession())
	item := Item{ID: "f1", Type: models.ItemFile}

	assert.False(t, gate.CanPerform(item, models.AccessView))
	assert.False(t, gate.CanPerform(item, models.AccessDownload))
	assert.False(t, gate.Known(item))
}

func TestGateAdminBypass(t *testing.T) {
	gate := NewGate(adminSession())

	// 缓存完全为空，管理员仍然放行一切
	for _, item := range []Item{
		{ID: "f1", Type: models.ItemFile},
		{ID: "d1", Type: models.ItemFolder},
	} {
		for _, action := range []models.AccessType{
			models.AccessView, models.AccessDownload, models.AccessUpload, models.AccessCreateFolder,
		} {
			assert.True(t, gate.CanPerform(item, action), "admin should bypass for %s on %s", action, item.ID)
		}
	}
}

func TestGateGrantedAndUngrantedActions(t *testing.T) {
	gate := NewGate(userSession())
	item := Item{ID: "f1", Type: models.ItemFile}

	gate.Set(item, []models.AccessType{models.AccessView})

	assert.True(t, gate.CanPerform(item, models.AccessView))
	assert.False(t, gate.CanPerform(item, models.AccessDownload))
}

func TestGateSetOverwritesWholesale(t *testing.T) {
	gate := NewGate(userSession())
	item := Item{ID: "f1", Type: models.ItemFile}

	gate.Set(item, []models.AccessType{models.AccessView, models.AccessDownload})
	gate.Set(item, []models.AccessType{models.AccessView})

	assert.True(t, gate.CanPerform(item, models.AccessView))
	assert.False(t, gate.CanPerform(item, models.AccessDownload))
}

func TestGatePerKeyIndependence(t *testing.T) {
	gate := NewGate(userSession())
	a := Item{ID: "a", Type: models.ItemFile}
	b := Item{ID: "b", Type: models.ItemFile}

	// 模拟乱序完成：b的响应先到，a的后到
	gate.Set(b, []models.AccessType{models.AccessDownload})
	gate.Set(a, []models.AccessType{models.AccessView})

	assert.True(t, gate.CanPerform(a, models.AccessView))
	assert.False(t, gate.CanPerform(a, models.AccessDownload))
	assert.True(t, gate.CanPerform(b, models.AccessDownload))
	assert.False(t, gate.CanPerform(b, models.AccessView))
}

func TestGateItemTypeDisambiguation(t *testing.T) {
	gate := NewGate(userSession())
	file := Item{ID: "x", Type: models.ItemFile}
	folder := Item{ID: "x", Type: models.ItemFolder}

	gate.Set(file, []models.AccessType{models.AccessView})

	assert.True(t, gate.CanPerform(file, models.AccessView))
	assert.False(t, gate.CanPerform(folder, models.AccessView))
}

func TestGateForgetReturnsToFailClosed(t *testing.T) {
	gate := NewGate(userSession())
	item := Item{ID: "f1", Type: models.ItemFile}

	gate.Set(item, []models.AccessType{models.AccessDownload})
	assert.True(t, gate.CanPerform(item, models.AccessDownload))

	gate.Forget(item)
	assert.False(t, gate.CanPerform(item, models.AccessDownload))
}
