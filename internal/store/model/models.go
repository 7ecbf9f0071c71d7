package model

import "gorm.io/datatypes"

// AccessRecordModel 订阅/推荐名单的一行。日志只追加，不更新不删除。
type AccessRecordModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        int64          `gorm:"column:user_id;index"`
	Username      string         `gorm:"column:username"`
	Source        string         `gorm:"column:source"`
	GrantedAtUnix int64          `gorm:"column:granted_at"`
	MetaJSON      datatypes.JSON `gorm:"column:meta_json;type:TEXT"`
}

func (AccessRecordModel) TableName() string { return "access_records" }
