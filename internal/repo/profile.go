package repo

import (
	"context"
	"database/sql"

	"hireline/internal/domain"
)

// InsertProfileTx stores a candidate's profile rows in one transaction with
// the candidate itself.
func (r Repo) InsertProfileTx(ctx context.Context, tx *sql.Tx, candidateID string, p domain.Profile) error {
	for _, s := range p.Skills {
		if _, err := tx.ExecContext(ctx, `INSERT INTO candidate_skills(candidate_id,name,level) VALUES (?,?,?)`,
			candidateID, s.Name, nullable(s.Level)); err != nil {
			return err
		}
	}
	for _, e := range p.Experience {
		if _, err := tx.ExecContext(ctx, `INSERT INTO candidate_experience(candidate_id,company,title,start_date,end_date) VALUES (?,?,?,?,?)`,
			candidateID, e.Company, e.Title, nullable(e.StartDate), nullable(e.EndDate)); err != nil {
			return err
		}
	}
	for _, e := range p.Education {
		if _, err := tx.ExecContext(ctx, `INSERT INTO candidate_education(candidate_id,school,degree,start_date,end_date) VALUES (?,?,?,?,?)`,
			candidateID, e.School, nullable(e.Degree), nullable(e.StartDate), nullable(e.EndDate)); err != nil {
			return err
		}
	}
	for _, c := range p.Certifications {
		if _, err := tx.ExecContext(ctx, `INSERT INTO candidate_certifications(candidate_id,name,issuer,issued_at) VALUES (?,?,?,?)`,
			candidateID, c.Name, nullable(c.Issuer), nullable(c.IssuedAt)); err != nil {
			return err
		}
	}
	for _, d := range p.Documents {
		if _, err := tx.ExecContext(ctx, `INSERT INTO candidate_documents(candidate_id,name,url,uploaded_at) VALUES (?,?,?,?)`,
			candidateID, d.Name, d.URL, nullable(d.UploadedAt)); err != nil {
			return err
		}
	}
	return nil
}

// GetProfile assembles the nested profile projection for a candidate.
func (r Repo) GetProfile(ctx context.Context, candidateID string) (domain.Profile, error) {
	p := domain.Profile{
		Skills:         []domain.Skill{},
		Experience:     []domain.Experience{},
		Education:      []domain.Education{},
		Certifications: []domain.Certification{},
		Documents:      []domain.Document{},
	}

	rows, err := r.DB.QueryContext(ctx, `SELECT id,candidate_id,name,COALESCE(level,'') FROM candidate_skills WHERE candidate_id=? ORDER BY id ASC`, candidateID)
	if err != nil {
		return p, err
	}
	for rows.Next() {
		var s domain.Skill
		if err := rows.Scan(&s.ID, &s.CandidateID, &s.Name, &s.Level); err != nil {
			rows.Close()
			return p, err
		}
		p.Skills = append(p.Skills, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return p, err
	}

	rows, err = r.DB.QueryContext(ctx, `SELECT id,candidate_id,company,title,start_date,end_date FROM candidate_experience WHERE candidate_id=? ORDER BY id ASC`, candidateID)
	if err != nil {
		return p, err
	}
	for rows.Next() {
		var e domain.Experience
		var start, end sql.NullString
		if err := rows.Scan(&e.ID, &e.CandidateID, &e.Company, &e.Title, &start, &end); err != nil {
			rows.Close()
			return p, err
		}
		e.StartDate, e.EndDate = start.String, end.String
		p.Experience = append(p.Experience, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return p, err
	}

	rows, err = r.DB.QueryContext(ctx, `SELECT id,candidate_id,school,COALESCE(degree,''),start_date,end_date FROM candidate_education WHERE candidate_id=? ORDER BY id ASC`, candidateID)
	if err != nil {
		return p, err
	}
	for rows.Next() {
		var e domain.Education
		var start, end sql.NullString
		if err := rows.Scan(&e.ID, &e.CandidateID, &e.School, &e.Degree, &start, &end); err != nil {
			rows.Close()
			return p, err
		}
		e.StartDate, e.EndDate = start.String, end.String
		p.Education = append(p.Education, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return p, err
	}

	rows, err = r.DB.QueryContext(ctx, `SELECT id,candidate_id,name,COALESCE(issuer,''),COALESCE(issued_at,'') FROM candidate_certifications WHERE candidate_id=? ORDER BY id ASC`, candidateID)
	if err != nil {
		return p, err
	}
	for rows.Next() {
		var c domain.Certification
		if err := rows.Scan(&c.ID, &c.CandidateID, &c.Name, &c.Issuer, &c.IssuedAt); err != nil {
			rows.Close()
			return p, err
		}
		p.Certifications = append(p.Certifications, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return p, err
	}

	rows, err = r.DB.QueryContext(ctx, `SELECT id,candidate_id,name,url,COALESCE(uploaded_at,'') FROM candidate_documents WHERE candidate_id=? ORDER BY id ASC`, candidateID)
	if err != nil {
		return p, err
	}
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.CandidateID, &d.Name, &d.URL, &d.UploadedAt); err != nil {
			rows.Close()
			return p, err
		}
		p.Documents = append(p.Documents, d)
	}
	rows.Close()
	return p, rows.Err()
}
