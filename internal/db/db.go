package db

import (
	"fmt"

	"docpress/internal/jobs"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&jobs.Pack{},
		&jobs.RenderJob{},
		&jobs.Artifact{},
		&jobs.ArtifactFile{},
	); err != nil {
		return err
	}

	// Latest-job-per-doc lookups and the active-job check
	if err := gdb.Exec(`create index if not exists idx_jobs_pack_doc_created on render_jobs(pack_id, doc_id, created_at desc);`).Error; err != nil {
		return err
	}

	// Artifact meta carries the job id as a lookup relation, not a FK
	if err := gdb.Exec(`create index if not exists idx_artifacts_job on artifacts ((meta->>'render_job_id'));`).Error; err != nil {
		return err
	}

	// RenderJob → Pack is a real FK
	if err := gdb.Exec(`
do $$ begin
	alter table render_jobs add constraint fk_jobs_pack foreign key (pack_id) references packs(id);
exception when duplicate_object then null;
end $$;`).Error; err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_jobs_status_updated on render_jobs(status, updated_at);`,
		`create index if not exists idx_files_artifact on artifact_files(artifact_id, created_at desc);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
