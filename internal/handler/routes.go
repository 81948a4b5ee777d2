package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every HTTP handler of the API.
type Handlers struct {
	Grades     *GradeHandler
	Classes    *ClassHandler
	Students   *StudentHandler
	Attendance *AttendanceHandler
	Reports    *ReportHandler
	Messaging  *MessagingHandler
	Exports    *ExportHandler
	Imports    *ImportHandler
	Settings   *SettingsHandler
	Metrics    *MetricsHandler
}

// Register mounts the API under prefix. Settings and activation stay
// reachable without activation; everything else sits behind guard.
func Register(r *gin.Engine, prefix string, h Handlers, guard gin.HandlerFunc) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.GET("/activation", h.Settings.Activation)
	api.POST("/activation", h.Settings.Activate)
	api.GET("/settings", h.Settings.Get)
	api.PUT("/settings", h.Settings.Save)
	api.GET("/system/metrics", h.Metrics.Summary)

	guarded := api.Group("")
	if guard != nil {
		guarded.Use(guard)
	}

	guarded.GET("/settings/assets", h.Settings.GetAssets)
	guarded.PUT("/settings/assets", h.Settings.SaveAssets)
	guarded.DELETE("/settings/assets", h.Settings.ClearAssets)

	grades := guarded.Group("/grades")
	grades.GET("", h.Grades.List)
	grades.POST("", h.Grades.Create)
	grades.PUT("/:id", h.Grades.Rename)
	grades.DELETE("/:id", h.Grades.Delete)

	classes := guarded.Group("/classes")
	classes.GET("", h.Classes.List)
	classes.POST("", h.Classes.Create)
	classes.PUT("/:id", h.Classes.Rename)
	classes.DELETE("/:id", h.Classes.Delete)

	students := guarded.Group("/students")
	students.GET("", h.Students.List)
	students.POST("", h.Students.Create)
	students.POST("/bulk", h.Students.CreateBulk)
	students.GET("/:id", h.Students.Get)
	students.PUT("/:id", h.Students.Update)
	students.DELETE("/:id", h.Students.Delete)
	students.POST("/:id/move", h.Students.Move)

	attendance := guarded.Group("/attendance")
	attendance.PUT("", h.Attendance.Save)
	attendance.POST("/class", h.Attendance.MarkClass)
	attendance.GET("/stats", h.Attendance.Stats)
	attendance.GET("/sheet", h.Attendance.Sheet)
	attendance.POST("/purge-orphans", h.Attendance.PurgeOrphans)
	attendance.GET("/:date/:studentId", h.Attendance.Get)

	reports := guarded.Group("/reports")
	reports.GET("/students/:id/history", h.Reports.StudentHistory)
	reports.GET("/classes/:id/period", h.Reports.ClassPeriod)

	guarded.GET("/messaging/notice", h.Messaging.Notice)

	exports := guarded.Group("/exports")
	exports.POST("", h.Exports.Create)
	exports.GET("/download/:token", h.Exports.Download)
	exports.GET("/:id", h.Exports.Status)

	imports := guarded.Group("/imports")
	imports.POST("/preview", h.Imports.Preview)
	imports.POST("/commit", h.Imports.Commit)
}
