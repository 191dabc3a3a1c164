package accessclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataroom-backend/pkg/models"
)

// fakeSource 脚本化的访问来源：按 (itemType:itemID) 返回预设能力
type fakeSource struct {
	mu     sync.Mutex
	grants map[string][]models.AccessType
	errs   map[string]error
	calls  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		grants: make(map[string][]models.AccessType),
		errs:   make(map[string]error),
	}
}

func (f *fakeSource) set(item Item, types ...models.AccessType) {
	f.mu.Lock()
	f.grants[item.key()] = types
	f.mu.Unlock()
}

func (f *fakeSource) fail(item Item, err error) {
	f.mu.Lock()
	f.errs[item.key()] = err
	f.mu.Unlock()
}

func (f *fakeSource) FetchAccess(ctx context.Context, itemID string, itemType models.ItemType) (models.AccessCheckResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	k := string(itemType) + ":" + itemID
	if err := f.errs[k]; err != nil {
		return models.AccessCheckResponse{}, err
	}
	types := f.grants[k]
	return models.AccessCheckResponse{HasAccess: len(types) > 0, AccessTypes: types}, nil
}

func TestRefresherIdempotentRecheck(t *testing.T) {
	source := newFakeSource()
	gate := NewGate(userSession())
	r := NewRefresher(source, gate)
	item := Item{ID: "f1", Type: models.ItemFile}

	source.set(item, models.AccessView, models.AccessDownload)
	r.Watch(item)

	// 无中间变更时，连续两次刷新结果一致
	r.RefreshAll(context.Background())
	first := gate.AccessTypes(item)
	r.RefreshAll(context.Background())
	second := gate.AccessTypes(item)

	assert.ElementsMatch(t, first, second)
	assert.ElementsMatch(t, []models.AccessType{models.AccessView, models.AccessDownload}, second)
}

func TestRefresherRevokeAllRemovesAllCapabilities(t *testing.T) {
	source := newFakeSource()
	gate := NewGate(userSession())
	r := NewRefresher(source, gate)
	item := Item{ID: "f1", Type: models.ItemFile}

	source.set(item, models.AccessView, models.AccessDownload)
	r.Watch(item)
	r.RefreshAll(context.Background())
	require.True(t, gate.CanPerform(item, models.AccessView))
	require.True(t, gate.CanPerform(item, models.AccessDownload))

	// 整体撤销：后端不再返回任何能力
	source.set(item)
	r.RefreshAll(context.Background())

	assert.False(t, gate.CanPerform(item, models.AccessView))
	assert.False(t, gate.CanPerform(item, models.AccessDownload))
}

func TestRefresherRevokeSpecificRemovesExactlyOne(t *testing.T) {
	source := newFakeSource()
	gate := NewGate(userSession())
	r := NewRefresher(source, gate)
	item := Item{ID: "f1", Type: models.ItemFile}

	source.set(item, models.AccessView, models.AccessDownload)
	r.Watch(item)
	r.RefreshAll(context.Background())

	source.set(item, models.AccessView)
	r.RefreshAll(context.Background())

	assert.True(t, gate.CanPerform(item, models.AccessView))
	assert.False(t, gate.CanPerform(item, models.AccessDownload))
}

func TestRefresherErrorKeepsPreviousEntry(t *testing.T) {
	source := newFakeSource()
	gate := NewGate(userSession())
	r := NewRefresher(source, gate)
	item := Item{ID: "f1", Type: models.ItemFile}

	source.set(item, models.AccessDownload)
	r.Watch(item)
	r.RefreshAll(context.Background())
	require.True(t, gate.CanPerform(item, models.AccessDownload))

	// 网络失败不清空已有授权，也不误授新权限
	source.fail(item, errors.New("connection refused"))
	r.RefreshAll(context.Background())
	assert.True(t, gate.CanPerform(item, models.AccessDownload))
}

func TestRefresherOutOfOrderKeysStayCorrect(t *testing.T) {
	source := newFakeSource()
	gate := NewGate(userSession())
	r := NewRefresher(source, gate)
	a := Item{ID: "a", Type: models.ItemFile}
	b := Item{ID: "b", Type: models.ItemFile}

	source.set(a, models.AccessView)
	source.set(b, models.AccessDownload)
	r.Watch(a, b)

	// b先解析、a后解析，两个键最终都正确
	r.RefreshItem(context.Background(), b)
	r.RefreshItem(context.Background(), a)

	assert.True(t, gate.CanPerform(a, models.AccessView))
	assert.False(t, gate.CanPerform(a, models.AccessDownload))
	assert.True(t, gate.CanPerform(b, models.AccessDownload))
}

func TestRefresherEndToEndApprovalFlip(t *testing.T) {
	source := newFakeSource()
	gate := NewGate(userSession())
	r := NewRefresher(source, gate, WithInterval(time.Hour)) // 靠focus触发，不等真实定时器
	item := Item{ID: "F1", Type: models.ItemFile}

	r.Watch(item)
	r.Start(context.Background())
	defer r.Stop()

	// 请求已提交但尚未批准：闸门关闭
	assert.Eventually(t, func() bool {
		return gate.Known(item)
	}, time.Second, 5*time.Millisecond)
	require.False(t, gate.CanPerform(item, models.AccessDownload))

	// 管理员批准后，下一次刷新（窗口获得焦点）翻转闸门
	source.set(item, models.AccessDownload)
	r.Focus()

	assert.Eventually(t, func() bool {
		return gate.CanPerform(item, models.AccessDownload)
	}, time.Second, 5*time.Millisecond)
}

func TestRefresherStopPreventsFurtherWrites(t *testing.T) {
	source := newFakeSource()
	gate := NewGate(userSession())
	r := NewRefresher(source, gate, WithInterval(time.Hour))
	item := Item{ID: "f1", Type: models.ItemFile}

	r.Watch(item)
	r.Start(context.Background())
	r.Stop()

	source.set(item, models.AccessDownload)
	r.Focus() // 停机后的focus是空操作

	time.Sleep(20 * time.Millisecond)
	assert.False(t, gate.CanPerform(item, models.AccessDownload))
}

func TestRefresherPollingInterval(t *testing.T) {
	source := newFakeSource()
	gate := NewGate(userSession())
	r := NewRefresher(source, gate, WithInterval(10*time.Millisecond))
	item := Item{ID: "f1", Type: models.ItemFile}

	r.Watch(item)
	r.Start(context.Background())
	defer r.Stop()

	source.set(item, models.AccessView)
	assert.Eventually(t, func() bool {
		return gate.CanPerform(item, models.AccessView)
	}, time.Second, 5*time.Millisecond)
}
