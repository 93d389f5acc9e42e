package web

import (
	"encoding/csv"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/retrofund/retrofund/internal/core/application"
	"github.com/retrofund/retrofund/internal/core/domain"
)

type handler struct {
	appSvc   application.Service
	adminSvc application.AdminService
}

type votingConfigDto struct {
	MaxVotesPerVoter           int     `json:"maxVotesPerVoter"`
	MaxVotesPerProjectPerVoter float64 `json:"maxVotesPerProjectPerVoter"`
	AllowedVoterCount          int     `json:"allowedVoterCount"`
}

type roundRequest struct {
	Slug                   string          `json:"slug"`
	ApplicationPeriodStart time.Time       `json:"applicationPeriodStart"`
	ApplicationPeriodEnd   time.Time       `json:"applicationPeriodEnd"`
	VotingPeriodStart      time.Time       `json:"votingPeriodStart"`
	VotingPeriodEnd        time.Time       `json:"votingPeriodEnd"`
	ResultsPeriodStart     time.Time       `json:"resultsPeriodStart"`
	VotingConfig           votingConfigDto `json:"votingConfig"`
	AdminAddresses         []string        `json:"adminAddresses"`
}

type roundResponse struct {
	Id                     string          `json:"id"`
	Slug                   string          `json:"slug"`
	Published              bool            `json:"published"`
	Phase                  string          `json:"phase,omitempty"`
	ApplicationPeriodStart time.Time       `json:"applicationPeriodStart"`
	ApplicationPeriodEnd   time.Time       `json:"applicationPeriodEnd"`
	VotingPeriodStart      time.Time       `json:"votingPeriodStart"`
	VotingPeriodEnd        time.Time       `json:"votingPeriodEnd"`
	ResultsPeriodStart     time.Time       `json:"resultsPeriodStart"`
	VotingConfig           votingConfigDto `json:"votingConfig"`
	AdminAddresses         []string        `json:"adminAddresses"`
	CreatedAt              time.Time       `json:"createdAt"`
}

type voterResponse struct {
	UserId        string    `json:"userId"`
	WalletAddress string    `json:"walletAddress"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ballotResponse struct {
	RoundId     string             `json:"roundId"`
	VoterId     string             `json:"voterId"`
	Votes       map[string]float64 `json:"votes"`
	SubmittedAt time.Time          `json:"submittedAt"`
}

type datasetValuesDto struct {
	DatasetId   string            `json:"datasetId"`
	DatasetName string            `json:"datasetName"`
	Values      map[string]string `json:"values"`
}

type applicationResponse struct {
	Id                  string             `json:"id"`
	RoundId             string             `json:"roundId"`
	ProjectName         string             `json:"projectName"`
	ProjectUrl          string             `json:"projectUrl"`
	SubmitterId         string             `json:"submitterId"`
	CreatedAt           time.Time          `json:"createdAt"`
	CustomDatasetValues []datasetValuesDto `json:"customDatasetValues,omitempty"`
}

type datasetResponse struct {
	Id        string    `json:"id"`
	RoundId   string    `json:"roundId"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"isPublic"`
	RowCount  int       `json:"rowCount"`
	CreatedAt time.Time `json:"createdAt"`
}

type scoreResponse struct {
	ApplicationId string  `json:"applicationId"`
	ProjectName   string  `json:"projectName"`
	Score         float64 `json:"score"`
}

func toRoundRequest(req roundRequest) application.CreateRoundRequest {
	return application.CreateRoundRequest{
		Slug:                   req.Slug,
		ApplicationPeriodStart: req.ApplicationPeriodStart,
		ApplicationPeriodEnd:   req.ApplicationPeriodEnd,
		VotingPeriodStart:      req.VotingPeriodStart,
		VotingPeriodEnd:        req.VotingPeriodEnd,
		ResultsPeriodStart:     req.ResultsPeriodStart,
		VotingConfig: domain.VotingConfig{
			MaxVotesPerVoter:           req.VotingConfig.MaxVotesPerVoter,
			MaxVotesPerProjectPerVoter: req.VotingConfig.MaxVotesPerProjectPerVoter,
			AllowedVoterCount:          req.VotingConfig.AllowedVoterCount,
		},
		AdminAddresses: req.AdminAddresses,
	}
}

func toRoundResponse(round *domain.Round, phase string) roundResponse {
	return roundResponse{
		Id:                     round.Id,
		Slug:                   round.Slug,
		Published:              round.Published,
		Phase:                  phase,
		ApplicationPeriodStart: round.ApplicationPeriodStart,
		ApplicationPeriodEnd:   round.ApplicationPeriodEnd,
		VotingPeriodStart:      round.VotingPeriodStart,
		VotingPeriodEnd:        round.VotingPeriodEnd,
		ResultsPeriodStart:     round.ResultsPeriodStart,
		VotingConfig: votingConfigDto{
			MaxVotesPerVoter:           round.VotingConfig.MaxVotesPerVoter,
			MaxVotesPerProjectPerVoter: round.VotingConfig.MaxVotesPerProjectPerVoter,
			AllowedVoterCount:          round.VotingConfig.AllowedVoterCount,
		},
		AdminAddresses: round.AdminAddresses,
		CreatedAt:      round.CreatedAt,
	}
}

func toRoundInfoResponse(info *application.RoundInfo) roundResponse {
	return toRoundResponse(&info.Round, info.Phase.String())
}

func toBallotResponse(ballot *domain.Ballot) ballotResponse {
	return ballotResponse{
		RoundId:     ballot.RoundId,
		VoterId:     ballot.VoterId,
		Votes:       ballot.Votes,
		SubmittedAt: ballot.SubmittedAt,
	}
}

func toApplicationResponse(info *application.ApplicationInfo) applicationResponse {
	values := make([]datasetValuesDto, 0, len(info.CustomDatasetValues))
	for _, v := range info.CustomDatasetValues {
		values = append(values, datasetValuesDto{
			DatasetId:   v.DatasetId,
			DatasetName: v.DatasetName,
			Values:      v.Values,
		})
	}
	return applicationResponse{
		Id:                  info.Id,
		RoundId:             info.RoundId,
		ProjectName:         info.ProjectName,
		ProjectUrl:          info.ProjectUrl,
		SubmitterId:         info.SubmitterId,
		CreatedAt:           info.CreatedAt,
		CustomDatasetValues: values,
	}
}

func toDatasetResponse(dataset *domain.CustomDataset) datasetResponse {
	return datasetResponse{
		Id:        dataset.Id,
		RoundId:   dataset.RoundId,
		Name:      dataset.Name,
		IsPublic:  dataset.IsPublic,
		RowCount:  dataset.RowCount,
		CreatedAt: dataset.CreatedAt,
	}
}

func toScoreResponses(scores []application.ApplicationScore) []scoreResponse {
	out := make([]scoreResponse, 0, len(scores))
	for _, s := range scores {
		out = append(out, scoreResponse(s))
	}
	return out
}

func (h *handler) createRound(c *gin.Context) {
	creator, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req roundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	round, err := h.adminSvc.CreateRound(c.Request.Context(), toRoundRequest(req), creator)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRoundResponse(round, domain.DraftPhase.String()))
}

func (h *handler) listRounds(c *gin.Context) {
	infos, err := h.appSvc.GetAllRounds(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]roundResponse, 0, len(infos))
	for i := range infos {
		out = append(out, toRoundInfoResponse(&infos[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getRound(c *gin.Context) {
	info, err := h.appSvc.GetRound(c.Request.Context(), c.Param("roundId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoundInfoResponse(info))
}

func (h *handler) getRoundBySlug(c *gin.Context) {
	info, err := h.appSvc.GetRoundBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoundInfoResponse(info))
}

func (h *handler) updateRound(c *gin.Context) {
	requester, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req roundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	round, err := h.adminSvc.UpdateRound(c.Request.Context(), c.Param("roundId"), toRoundRequest(req), requester)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoundResponse(round, ""))
}

func (h *handler) publishRound(c *gin.Context) {
	requester, ok := requireIdentity(c)
	if !ok {
		return
	}
	round, err := h.adminSvc.PublishRound(c.Request.Context(), c.Param("roundId"), requester)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoundResponse(round, ""))
}

func (h *handler) getRoundVoters(c *gin.Context) {
	requester, ok := requireIdentity(c)
	if !ok {
		return
	}
	voters, err := h.adminSvc.GetRoundVoters(c.Request.Context(), c.Param("roundId"), requester)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVoterResponses(voters))
}

func (h *handler) setRoundVoters(c *gin.Context) {
	requester, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req struct {
		WalletAddresses []string `json:"walletAddresses"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	voters, err := h.adminSvc.SetRoundVoters(c.Request.Context(), c.Param("roundId"), req.WalletAddresses, requester)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVoterResponses(voters))
}

func toVoterResponses(voters []domain.RoundVoter) []voterResponse {
	out := make([]voterResponse, 0, len(voters))
	for _, v := range voters {
		out = append(out, voterResponse{
			UserId:        v.UserId,
			WalletAddress: v.WalletAddress,
			CreatedAt:     v.CreatedAt,
		})
	}
	return out
}

func (h *handler) castBallot(c *gin.Context) {
	voter, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req struct {
		Votes map[string]float64 `json:"votes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	ballot, err := h.appSvc.CastBallot(c.Request.Context(), c.Param("roundId"), voter, req.Votes)
	if err != nil {
		writeError(c, err)
		return
	}
	ballotsCastCounter.Inc()
	c.JSON(http.StatusOK, toBallotResponse(ballot))
}

func (h *handler) getOwnBallot(c *gin.Context) {
	voter, ok := requireIdentity(c)
	if !ok {
		return
	}
	ballot, err := h.appSvc.GetOwnBallot(c.Request.Context(), c.Param("roundId"), voter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBallotResponse(ballot))
}

func (h *handler) listRoundBallots(c *gin.Context) {
	requester, ok := requireIdentity(c)
	if !ok {
		return
	}
	ballots, err := h.adminSvc.GetRoundBallots(c.Request.Context(), c.Param("roundId"), requester)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]ballotResponse, 0, len(ballots))
	for i := range ballots {
		out = append(out, toBallotResponse(&ballots[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getResults(c *gin.Context) {
	method, err := application.ParseResultsMethod(c.DefaultQuery("method", string(application.ResultsSum)))
	if err != nil {
		writeError(c, domain.NewValidationError(err.Error()))
		return
	}
	scores, err := h.appSvc.GetResults(c.Request.Context(), c.Param("roundId"), method, identityFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toScoreResponses(scores))
}

func (h *handler) importResults(c *gin.Context) {
	requester, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req struct {
		Scores map[string]float64 `json:"scores"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	scores, err := h.adminSvc.ImportResults(c.Request.Context(), c.Param("roundId"), req.Scores, requester)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toScoreResponses(scores))
}

func (h *handler) submitApplication(c *gin.Context) {
	submitter, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req struct {
		ProjectName string `json:"projectName"`
		ProjectUrl  string `json:"projectUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	app, err := h.appSvc.SubmitApplication(
		c.Request.Context(), c.Param("roundId"), req.ProjectName, req.ProjectUrl, submitter,
	)
	if err != nil {
		writeError(c, err)
		return
	}
	applicationsSubmittedCounter.Inc()
	c.JSON(http.StatusCreated, toApplicationResponse(&application.ApplicationInfo{Application: *app}))
}

func (h *handler) listRoundApplications(c *gin.Context) {
	if c.Query("format") == "csv" {
		h.exportRoundApplications(c)
		return
	}
	infos, err := h.appSvc.GetRoundApplications(c.Request.Context(), c.Param("roundId"), identityFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]applicationResponse, 0, len(infos))
	for i := range infos {
		out = append(out, toApplicationResponse(&infos[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) exportRoundApplications(c *gin.Context) {
	records, err := h.appSvc.ExportRoundApplications(c.Request.Context(), c.Param("roundId"), identityFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=applications.csv")
	c.Status(http.StatusOK)
	writer := csv.NewWriter(c.Writer)
	_ = writer.WriteAll(records)
	writer.Flush()
}

func (h *handler) getApplication(c *gin.Context) {
	info, err := h.appSvc.GetApplication(c.Request.Context(), c.Param("applicationId"), identityFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplicationResponse(info))
}

func (h *handler) listRoundDatasets(c *gin.Context) {
	datasets, err := h.appSvc.GetRoundDatasets(c.Request.Context(), c.Param("roundId"), identityFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]datasetResponse, 0, len(datasets))
	for i := range datasets {
		out = append(out, toDatasetResponse(&datasets[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) createDataset(c *gin.Context) {
	requester, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	dataset, err := h.adminSvc.CreateDataset(c.Request.Context(), c.Param("roundId"), req.Name, requester)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDatasetResponse(dataset))
}

func (h *handler) uploadDatasetRows(c *gin.Context) {
	requester, ok := requireIdentity(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, domain.NewValidationError("failed to read request body"))
		return
	}
	dataset, err := h.adminSvc.UploadDatasetRows(c.Request.Context(), c.Param("datasetId"), string(body), requester)
	if err != nil {
		writeError(c, err)
		return
	}
	datasetRowsIngestedCounter.Add(float64(dataset.RowCount))
	c.JSON(http.StatusOK, toDatasetResponse(dataset))
}

func (h *handler) setDatasetVisibility(c *gin.Context) {
	requester, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req struct {
		IsPublic *bool `json:"isPublic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.IsPublic == nil {
		writeError(c, domain.NewValidationError("missing isPublic field"))
		return
	}
	dataset, err := h.adminSvc.SetDatasetVisibility(c.Request.Context(), c.Param("datasetId"), *req.IsPublic, requester)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDatasetResponse(dataset))
}

func (h *handler) setPhaseOverride(c *gin.Context) {
	var req struct {
		Phase string `json:"phase"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	round, err := h.adminSvc.SetPhaseOverride(c.Request.Context(), c.Param("slug"), req.Phase)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoundResponse(round, ""))
}
