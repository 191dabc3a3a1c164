package database

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dataroom-backend/pkg/models"
)

// LocalDatabase 内存数据库实现（开发环境与测试用）
// 所有数据保存在进程内，重启即丢失
type LocalDatabase struct {
	mu sync.RWMutex

	users          map[string]*models.User          // by id
	otps           map[string]otpEntry              // by email
	resetTokens    map[string]resetEntry            // by token
	folders        map[string]*models.Folder        // by id
	files          map[string]*models.File          // by id
	favorites      map[string]*models.Favorite      // by id
	trash          map[string]*models.TrashItem     // by item id
	accessRequests map[string]*models.AccessRequest // by id
	tags           map[string]*models.Tag           // by id
	activity       []models.ActivityLog             // append-only
	groups         map[string]*models.UserGroup     // by id
	memberships    map[string]*models.GroupMembership
	plans          map[string]*models.Plan
	coupons        map[string]*models.Coupon // by upper-cased code
	subscriptions  map[string]*models.Subscription
}

type otpEntry struct {
	code      string
	expiresAt time.Time
}

type resetEntry struct {
	userID    string
	expiresAt time.Time
}

// NewLocalDatabase 创建内存数据库实例，并预置计划与优惠券
func NewLocalDatabase() DatabaseInterface {
	db := &LocalDatabase{
		users:          make(map[string]*models.User),
		otps:           make(map[string]otpEntry),
		resetTokens:    make(map[string]resetEntry),
		folders:        make(map[string]*models.Folder),
		files:          make(map[string]*models.File),
		favorites:      make(map[string]*models.Favorite),
		trash:          make(map[string]*models.TrashItem),
		accessRequests: make(map[string]*models.AccessRequest),
		tags:           make(map[string]*models.Tag),
		groups:         make(map[string]*models.UserGroup),
		memberships:    make(map[string]*models.GroupMembership),
		plans:          make(map[string]*models.Plan),
		coupons:        make(map[string]*models.Coupon),
		subscriptions:  make(map[string]*models.Subscription),
	}
	db.seedPlansAndCoupons()
	return db
}

// seedPlansAndCoupons 预置默认计划与优惠券
// 所有计划功能相同，只有时长不同
func (db *LocalDatabase) seedPlansAndCoupons() {
	features := []string{
		"Unlimited folders",
		"Secure file storage",
		"Access request workflow",
		"Activity reports",
		"User groups",
	}
	plans := []*models.Plan{
		{ID: "monthly", Name: "1 Month", DurationMonths: 1, PriceCents: 9900, PerMonthCents: 9900, Currency: "USD", Features: features, IsActive: true},
		{ID: "quarterly", Name: "3 Months", DurationMonths: 3, PriceCents: 24900, PerMonthCents: 8300, Currency: "USD", Savings: "Save 16%", Popular: true, Features: features, IsActive: true},
		{ID: "yearly", Name: "12 Months", DurationMonths: 12, PriceCents: 79900, PerMonthCents: 6700, Currency: "USD", Savings: "Save 33%", Features: features, IsActive: true},
	}
	for _, p := range plans {
		db.plans[p.ID] = p
	}

	coupons := []*models.Coupon{
		{Code: "WELCOME20", Type: models.CouponPercent, Discount: 20, IsActive: true},
		{Code: "SAVE50", Type: models.CouponFixed, Discount: 50, IsActive: true},
		{Code: "VDR2024", Type: models.CouponPercent, Discount: 15, IsActive: true},
	}
	for _, c := range coupons {
		db.coupons[c.Code] = c
	}
}

// ==== 用户管理 ====

func (db *LocalDatabase) CreateUser(user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == user.Email {
			return fmt.Errorf("user with email %s already exists", user.Email)
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.Status == "" {
		user.Status = "active"
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	cp := *user
	db.users[user.ID] = &cp
	return nil
}

func (db *LocalDatabase) GetUserByEmail(email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user not found")
}

func (db *LocalDatabase) GetUserByID(id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	cp := *u
	return &cp, nil
}

func (db *LocalDatabase) UpdateUser(user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[user.ID]; !ok {
		return fmt.Errorf("user not found")
	}
	user.UpdatedAt = time.Now()
	cp := *user
	db.users[user.ID] = &cp
	return nil
}

func (db *LocalDatabase) ListUsers() ([]models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	users := make([]models.User, 0, len(db.users))
	for _, u := range db.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

// ==== 验证码与重置令牌 ====

func (db *LocalDatabase) SaveOTP(email, code string, expiresAt time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.otps[email] = otpEntry{code: code, expiresAt: expiresAt}
	return nil
}

func (db *LocalDatabase) ConsumeOTP(email, code string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	entry, ok := db.otps[email]
	if !ok || entry.code != code {
		return fmt.Errorf("invalid verification code")
	}
	if time.Now().After(entry.expiresAt) {
		delete(db.otps, email)
		return fmt.Errorf("verification code expired")
	}
	delete(db.otps, email)
	return nil
}

func (db *LocalDatabase) SaveResetToken(userID, token string, expiresAt time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.resetTokens[token] = resetEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (db *LocalDatabase) ConsumeResetToken(token string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	entry, ok := db.resetTokens[token]
	if !ok {
		return "", fmt.Errorf("invalid reset token")
	}
	delete(db.resetTokens, token)
	if time.Now().After(entry.expiresAt) {
		return "", fmt.Errorf("reset token expired")
	}
	return entry.userID, nil
}

// ==== 文件夹 ====

func (db *LocalDatabase) CreateFolder(folder *models.Folder) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if folder.ID == "" {
		folder.ID = uuid.New().String()
	}
	folder.CreatedAt = time.Now()
	folder.UpdatedAt = time.Now()
	cp := *folder
	db.folders[folder.ID] = &cp
	return nil
}

func (db *LocalDatabase) GetFolder(id string) (*models.Folder, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	f, ok := db.folders[id]
	if !ok || f.DeletedAt != nil {
		return nil, fmt.Errorf("folder not found")
	}
	cp := *f
	cp.FileCount = db.countFilesLocked(id)
	return &cp, nil
}

func (db *LocalDatabase) ListFolders() ([]models.Folder, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	folders := make([]models.Folder, 0, len(db.folders))
	for _, f := range db.folders {
		if f.DeletedAt != nil {
			continue
		}
		cp := *f
		cp.FileCount = db.countFilesLocked(f.ID)
		folders = append(folders, cp)
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].CreatedAt.Before(folders[j].CreatedAt) })
	return folders, nil
}

// countFilesLocked 统计文件夹内未删除文件数，调用方必须持有锁
func (db *LocalDatabase) countFilesLocked(folderID string) int {
	n := 0
	for _, fl := range db.files {
		if fl.FolderID == folderID && fl.DeletedAt == nil {
			n++
		}
	}
	return n
}

func (db *LocalDatabase) UpdateFolder(folder *models.Folder) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.folders[folder.ID]; !ok {
		return fmt.Errorf("folder not found")
	}
	folder.UpdatedAt = time.Now()
	cp := *folder
	db.folders[folder.ID] = &cp
	return nil
}

func (db *LocalDatabase) SoftDeleteFolder(id, deletedBy string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	f, ok := db.folders[id]
	if !ok || f.DeletedAt != nil {
		return fmt.Errorf("folder not found")
	}
	now := time.Now()
	f.DeletedAt = &now
	db.trash[id] = &models.TrashItem{
		ID:        uuid.New().String(),
		ItemID:    id,
		ItemType:  models.ItemFolder,
		ItemName:  f.Name,
		DeletedBy: deletedBy,
		DeletedAt: now,
	}
	return nil
}

// ==== 文件 ====

func (db *LocalDatabase) CreateFile(file *models.File) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	file.CreatedAt = time.Now()
	file.UpdatedAt = time.Now()
	cp := *file
	db.files[file.ID] = &cp
	return nil
}

func (db *LocalDatabase) GetFile(id string) (*models.File, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	f, ok := db.files[id]
	if !ok || f.DeletedAt != nil {
		return nil, fmt.Errorf("file not found")
	}
	cp := *f
	return &cp, nil
}

func (db *LocalDatabase) ListFilesByFolder(folderID string) ([]models.File, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	files := make([]models.File, 0)
	for _, f := range db.files {
		if f.FolderID == folderID && f.DeletedAt == nil {
			files = append(files, *f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].CreatedAt.Before(files[j].CreatedAt) })
	return files, nil
}

func (db *LocalDatabase) UpdateFile(file *models.File) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.files[file.ID]; !ok {
		return fmt.Errorf("file not found")
	}
	file.UpdatedAt = time.Now()
	cp := *file
	db.files[file.ID] = &cp
	return nil
}

func (db *LocalDatabase) SoftDeleteFile(id, deletedBy string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	f, ok := db.files[id]
	if !ok || f.DeletedAt != nil {
		return fmt.Errorf("file not found")
	}
	now := time.Now()
	f.DeletedAt = &now
	db.trash[id] = &models.TrashItem{
		ID:        uuid.New().String(),
		ItemID:    id,
		ItemType:  models.ItemFile,
		ItemName:  f.Name,
		DeletedBy: deletedBy,
		DeletedAt: now,
	}
	return nil
}

// ==== 收藏 ====

func (db *LocalDatabase) AddFavorite(fav *models.Favorite) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	// 集合语义：已存在则幂等返回
	for _, f := range db.favorites {
		if f.UserID == fav.UserID && f.ItemID == fav.ItemID && f.ItemType == fav.ItemType {
			*fav = *f
			return nil
		}
	}

	if fav.ID == "" {
		fav.ID = uuid.New().String()
	}
	fav.CreatedAt = time.Now()
	cp := *fav
	db.favorites[fav.ID] = &cp
	return nil
}

func (db *LocalDatabase) RemoveFavorite(userID, itemID string, itemType models.ItemType) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for id, f := range db.favorites {
		if f.UserID == userID && f.ItemID == itemID && f.ItemType == itemType {
			delete(db.favorites, id)
			return nil
		}
	}
	return fmt.Errorf("favorite not found")
}

func (db *LocalDatabase) ListFavorites(userID string) ([]models.Favorite, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	favs := make([]models.Favorite, 0)
	for _, f := range db.favorites {
		if f.UserID == userID {
			favs = append(favs, *f)
		}
	}
	sort.Slice(favs, func(i, j int) bool { return favs[i].CreatedAt.Before(favs[j].CreatedAt) })
	return favs, nil
}

// ==== 回收站 ====

func (db *LocalDatabase) ListTrash() ([]models.TrashItem, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	items := make([]models.TrashItem, 0, len(db.trash))
	for _, t := range db.trash {
		items = append(items, *t)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].DeletedAt.After(items[j].DeletedAt) })
	return items, nil
}

func (db *LocalDatabase) RestoreItem(itemID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.trash[itemID]
	if !ok {
		return fmt.Errorf("trash item not found")
	}

	switch t.ItemType {
	case models.ItemFolder:
		if f, ok := db.folders[itemID]; ok {
			f.DeletedAt = nil
			f.UpdatedAt = time.Now()
		}
	case models.ItemFile:
		if f, ok := db.files[itemID]; ok {
			f.DeletedAt = nil
			f.UpdatedAt = time.Now()
		}
	}

	delete(db.trash, itemID)
	return nil
}

func (db *LocalDatabase) PurgeItem(itemID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.trash[itemID]
	if !ok {
		return fmt.Errorf("trash item not found")
	}

	switch t.ItemType {
	case models.ItemFolder:
		delete(db.folders, itemID)
		// 级联删除文件夹内文件
		for id, f := range db.files {
			if f.FolderID == itemID {
				delete(db.files, id)
			}
		}
	case models.ItemFile:
		delete(db.files, itemID)
	}

	delete(db.trash, itemID)
	return nil
}

// ==== 访问请求 ====

func (db *LocalDatabase) CreateAccessRequest(req *models.AccessRequest) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = models.RequestPending
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}
	req.UpdatedAt = time.Now()
	cp := *req
	cp.AccessTypes = append([]models.AccessType(nil), req.AccessTypes...)
	db.accessRequests[req.ID] = &cp
	return nil
}

func (db *LocalDatabase) GetAccessRequest(id string) (*models.AccessRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	r, ok := db.accessRequests[id]
	if !ok {
		return nil, fmt.Errorf("access request not found")
	}
	cp := *r
	cp.AccessTypes = append([]models.AccessType(nil), r.AccessTypes...)
	return &cp, nil
}

func (db *LocalDatabase) ListAccessRequests() ([]models.AccessRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	reqs := make([]models.AccessRequest, 0, len(db.accessRequests))
	for _, r := range db.accessRequests {
		cp := *r
		cp.AccessTypes = append([]models.AccessType(nil), r.AccessTypes...)
		reqs = append(reqs, cp)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RequestedAt.After(reqs[j].RequestedAt) })
	return reqs, nil
}

func (db *LocalDatabase) UpdateAccessRequest(req *models.AccessRequest) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.accessRequests[req.ID]; !ok {
		return fmt.Errorf("access request not found")
	}
	req.UpdatedAt = time.Now()
	cp := *req
	cp.AccessTypes = append([]models.AccessType(nil), req.AccessTypes...)
	db.accessRequests[req.ID] = &cp
	return nil
}

func (db *LocalDatabase) DeleteAccessRequest(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.accessRequests[id]; !ok {
		return fmt.Errorf("access request not found")
	}
	delete(db.accessRequests, id)
	return nil
}

func (db *LocalDatabase) FindPendingAccessRequest(requesterID, itemID string, itemType models.ItemType) (*models.AccessRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, r := range db.accessRequests {
		if r.RequesterID == requesterID && r.ItemID == itemID && r.ItemType == itemType && r.Status == models.RequestPending {
			cp := *r
			cp.AccessTypes = append([]models.AccessType(nil), r.AccessTypes...)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no pending request")
}

func (db *LocalDatabase) GetGrantedAccessTypes(userID, itemID string, itemType models.ItemType) ([]models.AccessType, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	// 授权是纯派生视图：已批准且仍保留在请求行上的能力的并集
	seen := make(map[models.AccessType]bool)
	granted := make([]models.AccessType, 0)
	for _, r := range db.accessRequests {
		if r.RequesterID != userID || r.ItemID != itemID || r.ItemType != itemType || r.Status != models.RequestApproved {
			continue
		}
		for _, t := range r.AccessTypes {
			if !seen[t] {
				seen[t] = true
				granted = append(granted, t)
			}
		}
	}
	return granted, nil
}

func (db *LocalDatabase) ListApprovedForItem(itemID string, itemType models.ItemType) ([]models.AccessRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	reqs := make([]models.AccessRequest, 0)
	for _, r := range db.accessRequests {
		if r.ItemID == itemID && r.ItemType == itemType && r.Status == models.RequestApproved {
			cp := *r
			cp.AccessTypes = append([]models.AccessType(nil), r.AccessTypes...)
			reqs = append(reqs, cp)
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RequestedAt.Before(reqs[j].RequestedAt) })
	return reqs, nil
}

// ==== 标签 ====

func (db *LocalDatabase) CreateTag(tag *models.Tag) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, t := range db.tags {
		if strings.EqualFold(t.Name, tag.Name) {
			return fmt.Errorf("tag %s already exists", tag.Name)
		}
	}
	if tag.ID == "" {
		tag.ID = uuid.New().String()
	}
	tag.CreatedAt = time.Now()
	tag.UpdatedAt = time.Now()
	cp := *tag
	db.tags[tag.ID] = &cp
	return nil
}

func (db *LocalDatabase) ListTags() ([]models.Tag, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	tags := make([]models.Tag, 0, len(db.tags))
	for _, t := range db.tags {
		tags = append(tags, *t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].CreatedAt.Before(tags[j].CreatedAt) })
	return tags, nil
}

func (db *LocalDatabase) UpdateTag(tag *models.Tag) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.tags[tag.ID]; !ok {
		return fmt.Errorf("tag not found")
	}
	tag.UpdatedAt = time.Now()
	cp := *tag
	db.tags[tag.ID] = &cp
	return nil
}

func (db *LocalDatabase) DeleteTag(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.tags[id]; !ok {
		return fmt.Errorf("tag not found")
	}
	delete(db.tags, id)
	return nil
}

// ==== 活动日志 ====

func (db *LocalDatabase) AppendActivity(entry *models.ActivityLog) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	db.activity = append(db.activity, *entry)
	return nil
}

func (db *LocalDatabase) ListActivity(filter models.LogFilter) ([]models.ActivityLog, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]models.ActivityLog, 0)
	for i := len(db.activity) - 1; i >= 0; i-- {
		e := db.activity[i]
		if filter.UserEmail != "" && e.UserEmail != filter.UserEmail {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (db *LocalDatabase) ListActivityByItem(itemID string) ([]models.ActivityLog, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]models.ActivityLog, 0)
	for _, e := range db.activity {
		if e.ItemID == itemID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ==== 用户组 ====

func (db *LocalDatabase) CreateGroup(group *models.UserGroup) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	group.CreatedAt = time.Now()
	group.UpdatedAt = time.Now()
	cp := *group
	db.groups[group.ID] = &cp
	return nil
}

func (db *LocalDatabase) ListGroups() ([]models.UserGroup, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	groups := make([]models.UserGroup, 0, len(db.groups))
	for _, g := range db.groups {
		cp := *g
		for _, m := range db.memberships {
			if m.GroupID == g.ID {
				cp.MemberCount++
			}
		}
		groups = append(groups, cp)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].CreatedAt.Before(groups[j].CreatedAt) })
	return groups, nil
}

func (db *LocalDatabase) DeleteGroup(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.groups[id]; !ok {
		return fmt.Errorf("group not found")
	}
	delete(db.groups, id)
	for mid, m := range db.memberships {
		if m.GroupID == id {
			delete(db.memberships, mid)
		}
	}
	return nil
}

func (db *LocalDatabase) AddGroupMember(m *models.GroupMembership) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.memberships {
		if existing.GroupID == m.GroupID && existing.UserID == m.UserID {
			return nil // 已是成员，幂等
		}
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	cp := *m
	db.memberships[m.ID] = &cp
	return nil
}

func (db *LocalDatabase) RemoveGroupMember(groupID, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for id, m := range db.memberships {
		if m.GroupID == groupID && m.UserID == userID {
			delete(db.memberships, id)
			return nil
		}
	}
	return fmt.Errorf("membership not found")
}

func (db *LocalDatabase) ListGroupMembers(groupID string) ([]models.GroupMembership, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	members := make([]models.GroupMembership, 0)
	for _, m := range db.memberships {
		if m.GroupID == groupID {
			members = append(members, *m)
		}
	}
	return members, nil
}

// ==== 订阅计费 ====

func (db *LocalDatabase) ListPlans() ([]models.Plan, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	plans := make([]models.Plan, 0, len(db.plans))
	for _, p := range db.plans {
		if p.IsActive {
			plans = append(plans, *p)
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].DurationMonths < plans[j].DurationMonths })
	return plans, nil
}

func (db *LocalDatabase) GetPlan(id string) (*models.Plan, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	p, ok := db.plans[id]
	if !ok || !p.IsActive {
		return nil, fmt.Errorf("plan not found")
	}
	cp := *p
	return &cp, nil
}

func (db *LocalDatabase) GetCoupon(code string) (*models.Coupon, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	c, ok := db.coupons[strings.ToUpper(code)]
	if !ok || !c.IsActive {
		return nil, fmt.Errorf("coupon not found")
	}
	cp := *c
	return &cp, nil
}

func (db *LocalDatabase) CreateSubscription(sub *models.Subscription) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = time.Now()
	cp := *sub
	db.subscriptions[sub.ID] = &cp
	return nil
}

func (db *LocalDatabase) GetUserSubscription(userID string) (*models.Subscription, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var latest *models.Subscription
	for _, s := range db.subscriptions {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("subscription not found")
	}
	cp := *latest
	if p, ok := db.plans[cp.PlanID]; ok {
		pc := *p
		cp.Plan = &pc
	}
	return &cp, nil
}

func (db *LocalDatabase) GetSubscriptionByID(id string) (*models.Subscription, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s, ok := db.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("subscription not found")
	}
	cp := *s
	if p, ok := db.plans[cp.PlanID]; ok {
		pc := *p
		cp.Plan = &pc
	}
	return &cp, nil
}

func (db *LocalDatabase) UpdateSubscription(sub *models.Subscription) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.subscriptions[sub.ID]; !ok {
		return fmt.Errorf("subscription not found")
	}
	sub.UpdatedAt = time.Now()
	cp := *sub
	db.subscriptions[sub.ID] = &cp
	return nil
}

// ==== 存储用量 ====

func (db *LocalDatabase) GetStorageUsage() (*models.StorageUsage, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	usage := &models.StorageUsage{}
	for _, f := range db.files {
		if f.DeletedAt == nil {
			usage.TotalBytes += f.SizeBytes
			usage.FileCount++
		}
	}
	for _, f := range db.folders {
		if f.DeletedAt == nil {
			usage.FolderCount++
		}
	}
	return usage, nil
}

// HealthCheck 健康检查
func (db *LocalDatabase) HealthCheck() error {
	return nil
}

// Close 关闭连接（内存实现为空操作）
func (db *LocalDatabase) Close() error {
	return nil
}
