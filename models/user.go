package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/config"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
	"github.com/google/uuid"
)

type User struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index" json:"business_id"`
	Username   string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email      *string   `gorm:"size:100;unique" json:"email"`
	Password   string    `gorm:"size:255;not null" json:"password"`
	IsActive   *bool     `gorm:"not null" json:"is_active"`
	RoleId     int       `gorm:"not null;default:0" json:"role_id"`
	Role       UserRole  `gorm:"type:enum('A', 'O', 'C');default:C" json:"role"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" binding:"required"`
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email"`
	Password string   `json:"password" binding:"required"`
	IsActive *bool    `json:"is_active" binding:"required"`
	RoleId   int      `json:"role_id"`
	Role     UserRole `json:"role" binding:"required"`
}

type UpdateUserInput struct {
	Name     *string   `json:"name"`
	Email    *string   `json:"email"`
	Password *string   `json:"password"`
	IsActive *bool     `json:"is_active"`
	RoleId   *int      `json:"role_id"`
	Role     *UserRole `json:"role"`
}

/*
caches:
	User:$username
	Token:$token
	Tokens:$username
	LoginAttempts:$username
*/

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + user.Username)
}

func (result *User) PrepareGive() {
	result.Password = ""
}

type LoginInfo struct {
	Token        string          `json:"token"`
	Name         string          `json:"name"`
	Role         string          `json:"role"`
	Modules      []AllowedModule `json:"modules"`
	BusinessName string          `json:"business_name"`
	Timezone     string          `json:"timezone"`
}

type AllowedModule struct {
	ModuleName     string `json:"module_name"`
	AllowedActions string `json:"allowed_actions"`
}

const (
	maxLoginAttempts   = 5
	loginBlockDuration = 5 * time.Minute
)

func loginAttemptsKey(username string) string {
	return "LoginAttempts:" + username
}

func passwordMatches(hashed, plain string) bool {
	return utils.ComparePassword(hashed, plain) == nil
}

// recordFailedLogin bumps the per-username failure counter. The key expires
// after the block window so stale counters clear themselves.
func recordFailedLogin(ctx context.Context, username string) {
	key := loginAttemptsKey(username)
	count, err := config.GetRedisCounter(ctx, key)
	if err != nil {
		return
	}
	if count == 1 {
		_ = config.SetRedisValue(key, "1", loginBlockDuration)
	}
}

func isLoginBlocked(username string) bool {
	val, exists, err := config.GetRedisValue(loginAttemptsKey(username))
	if err != nil || !exists {
		return false
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return false
	}
	return count >= maxLoginAttempts
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	db := config.GetDB()
	var err error
	var result LoginInfo

	if isLoginBlocked(username) {
		return &result, utils.ForbiddenError("TOO_MANY_LOGIN_ATTEMPTS")
	}

	user := User{}

	// get User info
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return &result, err
	}
	if !exists {
		err = db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error
		if err != nil {
			recordFailedLogin(ctx, username)
			return &result, errors.New("invalid username or password")
		}
	}

	// check login credentials; any compare error (malformed hash included)
	// is a failed login
	if !passwordMatches(user.Password, password) {
		recordFailedLogin(ctx, username)
		return &result, errors.New("invalid username or password")
	}

	isActive := *user.IsActive
	if !isActive {
		return &result, errors.New("user is disabled")
	}

	// success clears the failure counter
	_ = config.RemoveRedisKey(loginAttemptsKey(username))

	// generate token & response
	token := uuid.New()
	result.Token = token.String()
	result.Name = user.Username
	if user.Role == UserRoleAdmin {
		result.Role = "Admin"
	} else {
		var userRole Role
		if err := db.WithContext(ctx).Model(&Role{}).
			Preload("RoleModules").Preload("RoleModules.Module").
			Where("id = ?", user.RoleId).First(&userRole, user.RoleId).Error; err != nil {
			return nil, err
		}
		result.Role = userRole.Name
		var allowedModules []AllowedModule
		for _, rm := range userRole.RoleModules {
			allowedModules = append(allowedModules, AllowedModule{
				ModuleName:     rm.Module.Name,
				AllowedActions: rm.AllowedActions,
			})
		}
		result.Modules = allowedModules

		var business Business
		if err := db.WithContext(ctx).Model(&Business{}).Where("id = ?", user.BusinessId).First(&business).Error; err != nil {
			return nil, err
		}
		result.BusinessName = business.Name
		result.Timezone = business.Timezone
	}

	// store token in redis
	token_lifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil {
		token_lifespan = 24
	}

	// add new token to the user's tokens set
	if err := config.AddRedisSet("Tokens:"+user.Username, token.String()); err != nil {
		return nil, err
	}
	if err := config.SetRedisValue("Token:"+token.String(), user.Username, time.Duration(token_lifespan)*time.Hour); err != nil {
		return &result, err
	}

	return &result, nil
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("token is required")
	}
	err := config.RemoveRedisKey("Token:" + fmt.Sprint(token))
	if err != nil {
		return false, nil
	}
	// remove current token from tokens list
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return false, errors.New("user not found")
	}
	if err := config.RemoveRedisSetMember("Tokens:"+username, token); err != nil {
		return false, err
	}
	return true, nil
}

// RefreshSession rotates the caller's session token: the old token dies
// immediately, the new one gets a fresh lifespan.
func RefreshSession(ctx context.Context) (string, error) {
	oldToken, ok := utils.GetTokenFromContext(ctx)
	if !ok || oldToken == "" {
		return "", utils.UnauthorizedError("UNAUTHORIZED")
	}
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return "", utils.UnauthorizedError("UNAUTHORIZED")
	}

	tokenLifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil {
		tokenLifespan = 24
	}

	newToken := uuid.NewString()
	if err := config.AddRedisSet("Tokens:"+username, newToken); err != nil {
		return "", err
	}
	if err := config.SetRedisValue("Token:"+newToken, username, time.Duration(tokenLifespan)*time.Hour); err != nil {
		return "", err
	}
	_ = config.RemoveRedisKey("Token:" + oldToken)
	_ = config.RemoveRedisSetMember("Tokens:"+username, oldToken)
	return newToken, nil
}

// ConfirmUser activates the account named in a confirmation token. The token
// is the JWT handed out at creation time; an expired or tampered token is
// rejected by the validator.
func ConfirmUser(ctx context.Context, token string) error {
	parsed, err := utils.JwtValidate(token)
	if err != nil || !parsed.Valid {
		return utils.UnauthorizedError("INVALID_CONFIRMATION_TOKEN")
	}
	claims, ok := parsed.Claims.(*utils.JwtCustomClaim)
	if !ok || claims.Role != "confirm" {
		return utils.UnauthorizedError("INVALID_CONFIRMATION_TOKEN")
	}

	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Model(&User{}).Where("id = ?", claims.ID).Take(&user).Error; err != nil {
		return utils.ErrorRecordNotFound
	}
	if err := db.WithContext(ctx).Model(&User{}).Where("id = ?", user.ID).
		Update("is_active", true).Error; err != nil {
		return err
	}
	return user.RemoveInstanceRedis()
}

// revoke every issued session of a user (e.g. on deactivate / password change)
func revokeUserSessions(username string) error {
	tokens, err := config.GetRedisSetMembers("Tokens:" + username)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if err := config.RemoveRedisKey("Token:" + t); err != nil {
			return err
		}
	}
	return config.RemoveRedisKey("Tokens:" + username)
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	user := User{}

	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		if err := config.SetRedisObject("User:"+username, &user, utils.GetCacheLifespan()); err != nil {
			return nil, err
		}
	}
	return &user, nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, utils.BadRequestError("INVALID_EMAIL")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	user := User{
		BusinessId: businessId,
		Username:   input.Username,
		Name:       input.Name,
		Email:      utils.NilIfEmpty(input.Email),
		Password:   string(hashed),
		IsActive:   input.IsActive,
		RoleId:     input.RoleId,
		Role:       input.Role,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	user.PrepareGive()
	return &user, nil
}

func UpdateUser(ctx context.Context, id int, input *UpdateUserInput) (*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	user, err := utils.FetchModel[User](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["Name"] = *input.Name
	}
	if input.Email != nil {
		if *input.Email != "" && !utils.IsValidEmail(*input.Email) {
			return nil, utils.BadRequestError("INVALID_EMAIL")
		}
		updates["Email"] = utils.NilIfEmpty(*input.Email)
	}
	if input.Password != nil {
		hashed, err := utils.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		updates["Password"] = string(hashed)
	}
	if input.IsActive != nil {
		updates["IsActive"] = *input.IsActive
	}
	if input.RoleId != nil {
		updates["RoleId"] = *input.RoleId
	}
	if input.Role != nil {
		updates["Role"] = *input.Role
	}

	if len(updates) > 0 {
		if err := db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	// password / activation changes invalidate existing sessions
	if input.Password != nil || (input.IsActive != nil && !*input.IsActive) {
		if err := revokeUserSessions(user.Username); err != nil {
			return nil, err
		}
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}

	user.PrepareGive()
	return user, nil
}

func DeleteUser(ctx context.Context, id int) (*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	user, err := utils.FetchModel[User](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Delete(&user).Error; err != nil {
		return nil, err
	}
	if err := revokeUserSessions(user.Username); err != nil {
		return nil, err
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}

	user.PrepareGive()
	return user, nil
}

func ListUsers(ctx context.Context) ([]*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	users, err := utils.FetchAllModels[User](ctx, businessId)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.PrepareGive()
	}
	return users, nil
}
