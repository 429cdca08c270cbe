package repository

import (
	"time"

	"github.com/beaconblast/campaign-delivery/internal/model"
)

type SmtpAccountEntity struct {
	ID              int64      `db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	Name            string     `db:"name"              gorm:"column:name;not null"`
	Provider        string     `db:"provider"          gorm:"column:provider"`
	Host            string     `db:"host"              gorm:"column:host;not null"`
	Port            int        `db:"port"              gorm:"column:port;not null"`
	Username        string     `db:"username"          gorm:"column:username"`
	Password        string     `db:"password"          gorm:"column:password"`
	Encryption      string     `db:"encryption"        gorm:"column:encryption;not null;default:tls"`
	FromName        string     `db:"from_name"         gorm:"column:from_name"`
	FromEmail       string     `db:"from_email"        gorm:"column:from_email;not null"`
	ReplyToEmail    string     `db:"reply_to_email"    gorm:"column:reply_to_email"`
	IsActive        bool       `db:"is_active"         gorm:"column:is_active;not null"`
	IsVerified      bool       `db:"is_verified"       gorm:"column:is_verified;not null;default:false"`
	IsGlobalDefault bool       `db:"is_global_default" gorm:"column:is_global_default;not null;default:false"`
	DailyLimit      *int       `db:"daily_limit"       gorm:"column:daily_limit"`
	EmailsSentToday int        `db:"emails_sent_today" gorm:"column:emails_sent_today;not null;default:0"`
	TotalEmailsSent int64      `db:"total_emails_sent" gorm:"column:total_emails_sent;not null;default:0"`
	LastUsedAt      *time.Time `db:"last_used_at"      gorm:"column:last_used_at"`
	CreatedAt       time.Time  `db:"created_at"        gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `db:"updated_at"        gorm:"column:updated_at;autoUpdateTime"`
}

func (SmtpAccountEntity) TableName() string {
	return "smtp_accounts"
}

type UserSmtpAssignmentEntity struct {
	ID            int64              `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	UserID        int64              `db:"user_id"         gorm:"column:user_id;not null;uniqueIndex:idx_assignment_user_account"`
	SmtpAccountID int64              `db:"smtp_account_id" gorm:"column:smtp_account_id;not null;uniqueIndex:idx_assignment_user_account"`
	SmtpAccount   *SmtpAccountEntity `gorm:"foreignKey:SmtpAccountID;references:ID;constraint:OnDelete:CASCADE"`
	IsDefault     bool               `db:"is_default"      gorm:"column:is_default;not null;default:false"`
	AssignedAt    time.Time          `db:"assigned_at"     gorm:"column:assigned_at;autoCreateTime"`
}

func (UserSmtpAssignmentEntity) TableName() string {
	return "user_smtp_assignments"
}

func toSmtpAccountEntity(m *model.SmtpAccount) *SmtpAccountEntity {
	if m == nil {
		return nil
	}
	return &SmtpAccountEntity{
		ID:              m.ID,
		Name:            m.Name,
		Provider:        m.Provider,
		Host:            m.Host,
		Port:            m.Port,
		Username:        m.Username,
		Password:        m.Password,
		Encryption:      string(m.Encryption),
		FromName:        m.FromName,
		FromEmail:       m.FromEmail,
		ReplyToEmail:    m.ReplyToEmail,
		IsActive:        m.IsActive,
		IsVerified:      m.IsVerified,
		IsGlobalDefault: m.IsGlobalDefault,
		DailyLimit:      m.DailyLimit,
		EmailsSentToday: m.EmailsSentToday,
		TotalEmailsSent: m.TotalEmailsSent,
		LastUsedAt:      m.LastUsedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func toSmtpAccountModel(e *SmtpAccountEntity) *model.SmtpAccount {
	if e == nil {
		return nil
	}
	return &model.SmtpAccount{
		ID:              e.ID,
		Name:            e.Name,
		Provider:        e.Provider,
		Host:            e.Host,
		Port:            e.Port,
		Username:        e.Username,
		Password:        e.Password,
		Encryption:      model.Encryption(e.Encryption),
		FromName:        e.FromName,
		FromEmail:       e.FromEmail,
		ReplyToEmail:    e.ReplyToEmail,
		IsActive:        e.IsActive,
		IsVerified:      e.IsVerified,
		IsGlobalDefault: e.IsGlobalDefault,
		DailyLimit:      e.DailyLimit,
		EmailsSentToday: e.EmailsSentToday,
		TotalEmailsSent: e.TotalEmailsSent,
		LastUsedAt:      e.LastUsedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}
