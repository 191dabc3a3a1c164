package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"dataroom-backend/pkg/models"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) DatabaseInterface {
	// 尝试多种连接策略来解决受限网络环境的问题
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "prefer_simple_protocol=true"),
		addConnectionParams(dsn, "prefer_simple_protocol=true&connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&prefer_simple_protocol=true"),
		dsn, // 最后尝试原始DSN
	}

	var db *sql.DB
	var err error

	for i, strategy := range strategies {
		fmt.Printf("🔄 Trying connection strategy %d...\n", i+1)

		db, err = sql.Open("postgres", strategy)
		if err != nil {
			fmt.Printf("❌ Strategy %d failed to open: %v\n", i+1, err)
			continue
		}

		// 设置连接池参数
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		// 测试连接
		if err = db.Ping(); err != nil {
			fmt.Printf("❌ Strategy %d failed to ping: %v\n", i+1, err)
			db.Close()
			continue
		}

		fmt.Printf("✅ PostgreSQL connection established successfully with strategy %d\n", i+1)
		return &PostgresDatabase{db: db}
	}

	// 所有策略都失败了
	panic(fmt.Sprintf("Failed to connect to PostgreSQL with all strategies. Last error: %v", err))
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// ==== 用户管理 ====

// CreateUser 创建用户
func (db *PostgresDatabase) CreateUser(user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.Status == "" {
		user.Status = "active"
	}
	query := `
		INSERT INTO users (email, password_hash, name, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := db.db.QueryRow(query, user.Email, user.Password, user.Name, user.Role, user.Status).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (db *PostgresDatabase) GetUserByEmail(email string) (*models.User, error) {
	query := `
		SELECT id, email, COALESCE(name,''), COALESCE(role,'user'), COALESCE(status,'active'),
		       COALESCE(password_hash,''), last_login, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	var u models.User
	err := db.db.QueryRow(query, email).Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &u.Password, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}

// GetUserByID 根据ID获取用户
func (db *PostgresDatabase) GetUserByID(id string) (*models.User, error) {
	query := `
		SELECT id, email, COALESCE(name,''), COALESCE(role,'user'), COALESCE(status,'active'),
		       last_login, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var u models.User
	err := db.db.QueryRow(query, id).Scan(
		&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpdateUser 更新用户
func (db *PostgresDatabase) UpdateUser(user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID is required for update")
	}
	query := `
		UPDATE users
		SET name = $1,
		    role = $2,
		    status = $3,
		    last_login = $4,
		    password_hash = COALESCE(NULLIF($5, ''), password_hash),
		    email = $6,
		    updated_at = NOW()
		WHERE id = $7
	`
	_, err := db.db.Exec(query, user.Name, user.Role, user.Status, user.LastLogin, user.Password, user.Email, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// ListUsers 列出所有用户
func (db *PostgresDatabase) ListUsers() ([]models.User, error) {
	query := `
		SELECT id, email, COALESCE(name,''), COALESCE(role,'user'), COALESCE(status,'active'),
		       last_login, created_at, updated_at
		FROM users
		ORDER BY created_at
	`
	rows, err := db.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ==== 验证码与重置令牌 ====

// SaveOTP 保存登录验证码（同邮箱覆盖旧码）
func (db *PostgresDatabase) SaveOTP(email, code string, expiresAt time.Time) error {
	query := `
		INSERT INTO login_otps (email, code, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (email)
		DO UPDATE SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at, created_at = NOW()
	`
	if _, err := db.db.Exec(query, email, code, expiresAt); err != nil {
		return fmt.Errorf("failed to save otp: %w", err)
	}
	return nil
}

// ConsumeOTP 校验并消费验证码（一次性）
func (db *PostgresDatabase) ConsumeOTP(email, code string) error {
	var expiresAt time.Time
	err := db.db.QueryRow(`DELETE FROM login_otps WHERE email = $1 AND code = $2 RETURNING expires_at`, email, code).
		Scan(&expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("invalid verification code")
		}
		return fmt.Errorf("failed to consume otp: %w", err)
	}
	if time.Now().After(expiresAt) {
		return fmt.Errorf("verification code expired")
	}
	return nil
}

// SaveResetToken 保存密码重置令牌
func (db *PostgresDatabase) SaveResetToken(userID, token string, expiresAt time.Time) error {
	query := `
		INSERT INTO password_reset_tokens (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	if _, err := db.db.Exec(query, token, userID, expiresAt); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken 消费密码重置令牌，返回用户ID
func (db *PostgresDatabase) ConsumeResetToken(token string) (string, error) {
	var userID string
	var expiresAt time.Time
	err := db.db.QueryRow(`DELETE FROM password_reset_tokens WHERE token = $1 RETURNING user_id, expires_at`, token).
		Scan(&userID, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("invalid reset token")
		}
		return "", fmt.Errorf("failed to consume reset token: %w", err)
	}
	if time.Now().After(expiresAt) {
		return "", fmt.Errorf("reset token expired")
	}
	return userID, nil
}

// ==== 文件夹 ====

// CreateFolder 创建文件夹
func (db *PostgresDatabase) CreateFolder(folder *models.Folder) error {
	query := `
		INSERT INTO folders (name, description, owner_id, parent_id, color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := db.db.QueryRow(query, folder.Name, folder.Description, folder.OwnerID, folder.ParentID, folder.Color).
		Scan(&folder.ID, &folder.CreatedAt, &folder.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

// GetFolder 获取文件夹（含未删除文件计数）
func (db *PostgresDatabase) GetFolder(id string) (*models.Folder, error) {
	query := `
		SELECT f.id, f.name, COALESCE(f.description,''), f.owner_id, f.parent_id, COALESCE(f.color,''),
		       (SELECT COUNT(*) FROM files fl WHERE fl.folder_id = f.id AND fl.deleted_at IS NULL),
		       f.created_at, f.updated_at
		FROM folders f
		WHERE f.id = $1 AND f.deleted_at IS NULL
	`
	var f models.Folder
	err := db.db.QueryRow(query, id).Scan(
		&f.ID, &f.Name, &f.Description, &f.OwnerID, &f.ParentID, &f.Color, &f.FileCount, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("folder not found")
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return &f, nil
}

// ListFolders 列出所有未删除文件夹
func (db *PostgresDatabase) ListFolders() ([]models.Folder, error) {
	query := `
		SELECT f.id, f.name, COALESCE(f.description,''), f.owner_id, f.parent_id, COALESCE(f.color,''),
		       (SELECT COUNT(*) FROM files fl WHERE fl.folder_id = f.id AND fl.deleted_at IS NULL),
		       f.created_at, f.updated_at
		FROM folders f
		WHERE f.deleted_at IS NULL
		ORDER BY f.created_at
	`
	rows, err := db.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []models.Folder
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.Description, &f.OwnerID, &f.ParentID, &f.Color, &f.FileCount, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// UpdateFolder 更新文件夹
func (db *PostgresDatabase) UpdateFolder(folder *models.Folder) error {
	query := `
		UPDATE folders
		SET name = $1, description = $2, color = $3, updated_at = NOW()
		WHERE id = $4 AND deleted_at IS NULL
	`
	res, err := db.db.Exec(query, folder.Name, folder.Description, folder.Color, folder.ID)
	if err != nil {
		return fmt.Errorf("failed to update folder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("folder not found")
	}
	return nil
}

// SoftDeleteFolder 软删除文件夹并写入回收站
func (db *PostgresDatabase) SoftDeleteFolder(id, deletedBy string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var name string
	err = tx.QueryRow(`UPDATE folders SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING name`, id).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("folder not found")
		}
		return fmt.Errorf("failed to delete folder: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO trash_items (item_id, item_type, item_name, deleted_by, deleted_at)
		VALUES ($1, 'folder', $2, $3, NOW())
		ON CONFLICT (item_id) DO UPDATE SET deleted_by = EXCLUDED.deleted_by, deleted_at = NOW()
	`, id, name, deletedBy)
	if err != nil {
		return fmt.Errorf("failed to record trash item: %w", err)
	}

	return tx.Commit()
}

// ==== 文件 ====

// CreateFile 创建文件记录
func (db *PostgresDatabase) CreateFile(file *models.File) error {
	query := `
		INSERT INTO files (folder_id, name, content_type, size_bytes, storage_path, uploaded_by, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := db.db.QueryRow(query, file.FolderID, file.Name, file.ContentType, file.SizeBytes,
		file.StoragePath, file.UploadedBy, pq.Array(file.Tags)).
		Scan(&file.ID, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// GetFile 获取文件记录
func (db *PostgresDatabase) GetFile(id string) (*models.File, error) {
	query := `
		SELECT id, folder_id, name, COALESCE(content_type,''), size_bytes, COALESCE(storage_path,''),
		       uploaded_by, COALESCE(tags, '{}'), created_at, updated_at
		FROM files
		WHERE id = $1 AND deleted_at IS NULL
	`
	var f models.File
	err := db.db.QueryRow(query, id).Scan(
		&f.ID, &f.FolderID, &f.Name, &f.ContentType, &f.SizeBytes, &f.StoragePath,
		&f.UploadedBy, pq.Array(&f.Tags), &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("file not found")
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &f, nil
}

// ListFilesByFolder 列出文件夹内未删除文件
func (db *PostgresDatabase) ListFilesByFolder(folderID string) ([]models.File, error) {
	query := `
		SELECT id, folder_id, name, COALESCE(content_type,''), size_bytes, COALESCE(storage_path,''),
		       uploaded_by, COALESCE(tags, '{}'), created_at, updated_at
		FROM files
		WHERE folder_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`
	rows, err := db.db.Query(query, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []models.File
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.ID, &f.FolderID, &f.Name, &f.ContentType, &f.SizeBytes, &f.StoragePath,
			&f.UploadedBy, pq.Array(&f.Tags), &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateFile 更新文件记录
func (db *PostgresDatabase) UpdateFile(file *models.File) error {
	query := `
		UPDATE files
		SET name = $1, tags = $2, updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL
	`
	res, err := db.db.Exec(query, file.Name, pq.Array(file.Tags), file.ID)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file not found")
	}
	return nil
}

// SoftDeleteFile 软删除文件并写入回收站
func (db *PostgresDatabase) SoftDeleteFile(id, deletedBy string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var name string
	err = tx.QueryRow(`UPDATE files SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING name`, id).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("file not found")
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO trash_items (item_id, item_type, item_name, deleted_by, deleted_at)
		VALUES ($1, 'file', $2, $3, NOW())
		ON CONFLICT (item_id) DO UPDATE SET deleted_by = EXCLUDED.deleted_by, deleted_at = NOW()
	`, id, name, deletedBy)
	if err != nil {
		return fmt.Errorf("failed to record trash item: %w", err)
	}

	return tx.Commit()
}

// ==== 收藏 ====

// AddFavorite 添加收藏（重复添加幂等）
func (db *PostgresDatabase) AddFavorite(fav *models.Favorite) error {
	query := `
		INSERT INTO favorites (user_id, item_id, item_type, item_name, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, item_id, item_type) DO UPDATE SET item_name = EXCLUDED.item_name
		RETURNING id, created_at
	`
	err := db.db.QueryRow(query, fav.UserID, fav.ItemID, fav.ItemType, fav.ItemName).
		Scan(&fav.ID, &fav.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite 移除收藏
func (db *PostgresDatabase) RemoveFavorite(userID, itemID string, itemType models.ItemType) error {
	res, err := db.db.Exec(`DELETE FROM favorites WHERE user_id = $1 AND item_id = $2 AND item_type = $3`,
		userID, itemID, itemType)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("favorite not found")
	}
	return nil
}

// ListFavorites 列出用户收藏
func (db *PostgresDatabase) ListFavorites(userID string) ([]models.Favorite, error) {
	query := `
		SELECT id, user_id, item_id, item_type, item_name, created_at
		FROM favorites
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := db.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var favs []models.Favorite
	for rows.Next() {
		var f models.Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.ItemID, &f.ItemType, &f.ItemName, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		favs = append(favs, f)
	}
	return favs, rows.Err()
}

// ==== 回收站 ====

// ListTrash 列出回收站项目
func (db *PostgresDatabase) ListTrash() ([]models.TrashItem, error) {
	query := `
		SELECT id, item_id, item_type, item_name, deleted_by, deleted_at
		FROM trash_items
		ORDER BY deleted_at DESC
	`
	rows, err := db.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list trash: %w", err)
	}
	defer rows.Close()

	var items []models.TrashItem
	for rows.Next() {
		var t models.TrashItem
		if err := rows.Scan(&t.ID, &t.ItemID, &t.ItemType, &t.ItemName, &t.DeletedBy, &t.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trash item: %w", err)
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// RestoreItem 从回收站恢复项目
func (db *PostgresDatabase) RestoreItem(itemID string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var itemType models.ItemType
	err = tx.QueryRow(`DELETE FROM trash_items WHERE item_id = $1 RETURNING item_type`, itemID).Scan(&itemType)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("trash item not found")
		}
		return fmt.Errorf("failed to restore item: %w", err)
	}

	table := "files"
	if itemType == models.ItemFolder {
		table = "folders"
	}
	if _, err := tx.Exec(fmt.Sprintf(`UPDATE %s SET deleted_at = NULL, updated_at = NOW() WHERE id = $1`, table), itemID); err != nil {
		return fmt.Errorf("failed to restore %s: %w", itemType, err)
	}

	return tx.Commit()
}

// PurgeItem 从回收站彻底删除项目
func (db *PostgresDatabase) PurgeItem(itemID string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var itemType models.ItemType
	err = tx.QueryRow(`DELETE FROM trash_items WHERE item_id = $1 RETURNING item_type`, itemID).Scan(&itemType)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("trash item not found")
		}
		return fmt.Errorf("failed to purge item: %w", err)
	}

	if itemType == models.ItemFolder {
		// 级联删除文件夹内文件
		if _, err := tx.Exec(`DELETE FROM files WHERE folder_id = $1`, itemID); err != nil {
			return fmt.Errorf("failed to purge folder files: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM folders WHERE id = $1`, itemID); err != nil {
			return fmt.Errorf("failed to purge folder: %w", err)
		}
	} else {
		if _, err := tx.Exec(`DELETE FROM files WHERE id = $1`, itemID); err != nil {
			return fmt.Errorf("failed to purge file: %w", err)
		}
	}

	return tx.Commit()
}

// ==== 访问请求 ====

// CreateAccessRequest 创建访问请求
func (db *PostgresDatabase) CreateAccessRequest(req *models.AccessRequest) error {
	if req.Status == "" {
		req.Status = models.RequestPending
	}
	types := make([]string, len(req.AccessTypes))
	for i, t := range req.AccessTypes {
		types[i] = string(t)
	}
	query := `
		INSERT INTO access_requests (requester_id, requester_email, item_id, item_type, item_name, access_types, status, requested_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, requested_at, updated_at
	`
	err := db.db.QueryRow(query, req.RequesterID, req.RequesterEmail, req.ItemID, req.ItemType,
		req.ItemName, pq.Array(types), req.Status).
		Scan(&req.ID, &req.RequestedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create access request: %w", err)
	}
	return nil
}

// scanAccessRequest 扫描单行访问请求
func scanAccessRequest(scan func(dest ...interface{}) error) (*models.AccessRequest, error) {
	var r models.AccessRequest
	var types []string
	err := scan(&r.ID, &r.RequesterID, &r.RequesterEmail, &r.ItemID, &r.ItemType, &r.ItemName,
		pq.Array(&types), &r.Status, &r.RequestedAt, &r.ApprovedBy, &r.ApprovedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.AccessTypes = make([]models.AccessType, len(types))
	for i, t := range types {
		r.AccessTypes[i] = models.AccessType(t)
	}
	return &r, nil
}

const accessRequestColumns = `id, requester_id, requester_email, item_id, item_type, item_name,
	access_types, status, requested_at, approved_by, approved_at, updated_at`

// GetAccessRequest 获取访问请求
func (db *PostgresDatabase) GetAccessRequest(id string) (*models.AccessRequest, error) {
	row := db.db.QueryRow(`SELECT `+accessRequestColumns+` FROM access_requests WHERE id = $1`, id)
	req, err := scanAccessRequest(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("access request not found")
		}
		return nil, fmt.Errorf("failed to get access request: %w", err)
	}
	return req, nil
}

// ListAccessRequests 列出所有访问请求（管理员视图）
func (db *PostgresDatabase) ListAccessRequests() ([]models.AccessRequest, error) {
	rows, err := db.db.Query(`SELECT ` + accessRequestColumns + ` FROM access_requests ORDER BY requested_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list access requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.AccessRequest
	for rows.Next() {
		req, err := scanAccessRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

// UpdateAccessRequest 更新访问请求（状态流转与部分撤销）
func (db *PostgresDatabase) UpdateAccessRequest(req *models.AccessRequest) error {
	types := make([]string, len(req.AccessTypes))
	for i, t := range req.AccessTypes {
		types[i] = string(t)
	}
	query := `
		UPDATE access_requests
		SET status = $1, access_types = $2, approved_by = $3, approved_at = $4, updated_at = NOW()
		WHERE id = $5
	`
	res, err := db.db.Exec(query, req.Status, pq.Array(types), req.ApprovedBy, req.ApprovedAt, req.ID)
	if err != nil {
		return fmt.Errorf("failed to update access request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("access request not found")
	}
	return nil
}

// DeleteAccessRequest 删除访问请求（整体撤销）
func (db *PostgresDatabase) DeleteAccessRequest(id string) error {
	res, err := db.db.Exec(`DELETE FROM access_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete access request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("access request not found")
	}
	return nil
}

// FindPendingAccessRequest 查找同一 (requester,item) 的未决请求
func (db *PostgresDatabase) FindPendingAccessRequest(requesterID, itemID string, itemType models.ItemType) (*models.AccessRequest, error) {
	row := db.db.QueryRow(`SELECT `+accessRequestColumns+` FROM access_requests
		WHERE requester_id = $1 AND item_id = $2 AND item_type = $3 AND status = 'pending'
		LIMIT 1`, requesterID, itemID, itemType)
	req, err := scanAccessRequest(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no pending request")
		}
		return nil, fmt.Errorf("failed to find pending request: %w", err)
	}
	return req, nil
}

// GetGrantedAccessTypes 派生 (user,item) 的当前有效能力集合
func (db *PostgresDatabase) GetGrantedAccessTypes(userID, itemID string, itemType models.ItemType) ([]models.AccessType, error) {
	query := `
		SELECT DISTINCT unnest(access_types)
		FROM access_requests
		WHERE requester_id = $1 AND item_id = $2 AND item_type = $3 AND status = 'approved'
	`
	rows, err := db.db.Query(query, userID, itemID, itemType)
	if err != nil {
		return nil, fmt.Errorf("failed to get granted access types: %w", err)
	}
	defer rows.Close()

	granted := make([]models.AccessType, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan access type: %w", err)
		}
		granted = append(granted, models.AccessType(t))
	}
	return granted, rows.Err()
}

// ListApprovedForItem 列出持有某项目访问权的所有已批准请求
func (db *PostgresDatabase) ListApprovedForItem(itemID string, itemType models.ItemType) ([]models.AccessRequest, error) {
	rows, err := db.db.Query(`SELECT `+accessRequestColumns+` FROM access_requests
		WHERE item_id = $1 AND item_type = $2 AND status = 'approved'
		ORDER BY requested_at`, itemID, itemType)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.AccessRequest
	for rows.Next() {
		req, err := scanAccessRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

// ==== 标签 ====

// CreateTag 创建标签
func (db *PostgresDatabase) CreateTag(tag *models.Tag) error {
	query := `
		INSERT INTO tags (name, color, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := db.db.QueryRow(query, tag.Name, tag.Color, tag.CreatedBy).
		Scan(&tag.ID, &tag.CreatedAt, &tag.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

// ListTags 列出标签
func (db *PostgresDatabase) ListTags() ([]models.Tag, error) {
	rows, err := db.db.Query(`SELECT id, name, COALESCE(color,''), created_by, created_at, updated_at FROM tags ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// UpdateTag 更新标签
func (db *PostgresDatabase) UpdateTag(tag *models.Tag) error {
	res, err := db.db.Exec(`UPDATE tags SET name = $1, color = $2, updated_at = NOW() WHERE id = $3`,
		tag.Name, tag.Color, tag.ID)
	if err != nil {
		return fmt.Errorf("failed to update tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tag not found")
	}
	return nil
}

// DeleteTag 删除标签
func (db *PostgresDatabase) DeleteTag(id string) error {
	res, err := db.db.Exec(`DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tag not found")
	}
	return nil
}

// ==== 活动日志 ====

// AppendActivity 写入活动日志
func (db *PostgresDatabase) AppendActivity(entry *models.ActivityLog) error {
	query := `
		INSERT INTO activity_logs (id, user_id, user_email, action, item_id, item_type, item_name, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`
	err := db.db.QueryRow(query, entry.ID, entry.UserID, entry.UserEmail, entry.Action,
		entry.ItemID, entry.ItemType, entry.ItemName, entry.Detail).
		Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListActivity 按过滤条件列出活动日志
func (db *PostgresDatabase) ListActivity(filter models.LogFilter) ([]models.ActivityLog, error) {
	query := `
		SELECT id, user_id, user_email, action, COALESCE(item_id,''), COALESCE(item_type,''), COALESCE(item_name,''), COALESCE(detail,''), created_at
		FROM activity_logs
		WHERE 1=1
	`
	args := []interface{}{}
	n := 0
	if filter.UserEmail != "" {
		n++
		query += fmt.Sprintf(" AND user_email = $%d", n)
		args = append(args, filter.UserEmail)
	}
	if filter.Action != "" {
		n++
		query += fmt.Sprintf(" AND action = $%d", n)
		args = append(args, filter.Action)
	}
	if filter.From != nil {
		n++
		query += fmt.Sprintf(" AND created_at >= $%d", n)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		n++
		query += fmt.Sprintf(" AND created_at <= $%d", n)
		args = append(args, *filter.To)
	}
	// ULID 主键按时间有序，直接按 id 倒序即可
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
	}

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityLog
	for rows.Next() {
		var e models.ActivityLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.ItemID, &e.ItemType, &e.ItemName, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListActivityByItem 列出某项目的活动日志
func (db *PostgresDatabase) ListActivityByItem(itemID string) ([]models.ActivityLog, error) {
	query := `
		SELECT id, user_id, user_email, action, COALESCE(item_id,''), COALESCE(item_type,''), COALESCE(item_name,''), COALESCE(detail,''), created_at
		FROM activity_logs
		WHERE item_id = $1
		ORDER BY id
	`
	rows, err := db.db.Query(query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item activity: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityLog
	for rows.Next() {
		var e models.ActivityLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.ItemID, &e.ItemType, &e.ItemName, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ==== 用户组 ====

// CreateGroup 创建用户组
func (db *PostgresDatabase) CreateGroup(group *models.UserGroup) error {
	query := `
		INSERT INTO user_groups (name, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := db.db.QueryRow(query, group.Name, group.Description, group.CreatedBy).
		Scan(&group.ID, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// ListGroups 列出用户组（含成员数）
func (db *PostgresDatabase) ListGroups() ([]models.UserGroup, error) {
	query := `
		SELECT g.id, g.name, COALESCE(g.description,''), g.created_by,
		       (SELECT COUNT(*) FROM group_memberships m WHERE m.group_id = g.id),
		       g.created_at, g.updated_at
		FROM user_groups g
		ORDER BY g.created_at
	`
	rows, err := db.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.UserGroup
	for rows.Next() {
		var g models.UserGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &g.MemberCount, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteGroup 删除用户组及其成员关系
func (db *PostgresDatabase) DeleteGroup(id string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM group_memberships WHERE group_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM user_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("group not found")
	}
	return tx.Commit()
}

// AddGroupMember 添加组成员（重复添加幂等）
func (db *PostgresDatabase) AddGroupMember(m *models.GroupMembership) error {
	query := `
		INSERT INTO group_memberships (group_id, user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (group_id, user_id) DO NOTHING
	`
	if _, err := db.db.Exec(query, m.GroupID, m.UserID); err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// RemoveGroupMember 移除组成员
func (db *PostgresDatabase) RemoveGroupMember(groupID, userID string) error {
	res, err := db.db.Exec(`DELETE FROM group_memberships WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("membership not found")
	}
	return nil
}

// ListGroupMembers 列出组成员
func (db *PostgresDatabase) ListGroupMembers(groupID string) ([]models.GroupMembership, error) {
	rows, err := db.db.Query(`SELECT id, group_id, user_id, created_at FROM group_memberships WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var members []models.GroupMembership
	for rows.Next() {
		var m models.GroupMembership
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ==== 订阅计费 ====

// ListPlans 列出可购买计划
func (db *PostgresDatabase) ListPlans() ([]models.Plan, error) {
	query := `
		SELECT id, name, duration_months, price_cents, per_month_cents, currency, COALESCE(savings,''), popular, COALESCE(features, '{}'), is_active
		FROM plans
		WHERE is_active = true
		ORDER BY duration_months
	`
	rows, err := db.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.DurationMonths, &p.PriceCents, &p.PerMonthCents, &p.Currency, &p.Savings, &p.Popular, pq.Array(&p.Features), &p.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// GetPlan 获取计划
func (db *PostgresDatabase) GetPlan(id string) (*models.Plan, error) {
	query := `
		SELECT id, name, duration_months, price_cents, per_month_cents, currency, COALESCE(savings,''), popular, COALESCE(features, '{}'), is_active
		FROM plans
		WHERE id = $1 AND is_active = true
	`
	var p models.Plan
	err := db.db.QueryRow(query, id).Scan(&p.ID, &p.Name, &p.DurationMonths, &p.PriceCents, &p.PerMonthCents, &p.Currency, &p.Savings, &p.Popular, pq.Array(&p.Features), &p.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("plan not found")
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &p, nil
}

// GetCoupon 获取优惠券
func (db *PostgresDatabase) GetCoupon(code string) (*models.Coupon, error) {
	var c models.Coupon
	err := db.db.QueryRow(`SELECT code, type, discount, is_active FROM coupons WHERE code = $1 AND is_active = true`,
		strings.ToUpper(code)).Scan(&c.Code, &c.Type, &c.Discount, &c.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("coupon not found")
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

// CreateSubscription 创建订阅
func (db *PostgresDatabase) CreateSubscription(sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, plan_id, status, coupon_code, total_cents, current_period_start, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := db.db.QueryRow(query, sub.UserID, sub.PlanID, sub.Status, sub.CouponCode, sub.TotalCents,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetUserSubscription 获取用户最新订阅
func (db *PostgresDatabase) GetUserSubscription(userID string) (*models.Subscription, error) {
	query := `
		SELECT id, user_id, plan_id, status, coupon_code, total_cents, current_period_start, current_period_end, canceled_at, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var s models.Subscription
	err := db.db.QueryRow(query, userID).Scan(&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.CouponCode,
		&s.TotalCents, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CanceledAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("subscription not found")
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if plan, err := db.GetPlan(s.PlanID); err == nil {
		s.Plan = plan
	}
	return &s, nil
}

// GetSubscriptionByID 按ID获取订阅
func (db *PostgresDatabase) GetSubscriptionByID(id string) (*models.Subscription, error) {
	query := `
		SELECT id, user_id, plan_id, status, coupon_code, total_cents, current_period_start, current_period_end, canceled_at, created_at, updated_at
		FROM subscriptions
		WHERE id = $1
	`
	var s models.Subscription
	err := db.db.QueryRow(query, id).Scan(&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.CouponCode,
		&s.TotalCents, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CanceledAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("subscription not found")
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &s, nil
}

// UpdateSubscription 更新订阅
func (db *PostgresDatabase) UpdateSubscription(sub *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET status = $1, current_period_start = $2, current_period_end = $3, canceled_at = $4, updated_at = NOW()
		WHERE id = $5
	`
	res, err := db.db.Exec(query, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CanceledAt, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription not found")
	}
	return nil
}

// ==== 存储用量 ====

// GetStorageUsage 统计存储用量
func (db *PostgresDatabase) GetStorageUsage() (*models.StorageUsage, error) {
	var usage models.StorageUsage
	err := db.db.QueryRow(`
		SELECT COALESCE(SUM(size_bytes),0), COUNT(*),
		       (SELECT COUNT(*) FROM folders WHERE deleted_at IS NULL)
		FROM files
		WHERE deleted_at IS NULL
	`).Scan(&usage.TotalBytes, &usage.FileCount, &usage.FolderCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage usage: %w", err)
	}
	return &usage, nil
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}
