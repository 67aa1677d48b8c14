package models

import (
	"log"

	"bitbucket.org/mmdatafocus/docs_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&User{},
		&Role{}, &RoleModule{}, &Module{},
		&Document{}, &DocumentType{}, &DocumentField{}, &IssuingBody{},
		&SyncJob{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
